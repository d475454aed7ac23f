package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xlog-social/xlog/util"
)

type rootOptions struct {
	configFile string
}

// NewRootCmd builds the xlog command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           util.Name,
		Short:         "Federated blog server",
		Long:          `xlog publishes blog posts to the fediverse over ActivityPub and accepts follows, likes and replies from remote servers.`,
		Version:       util.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(
		serveCmd(opts),
		migrateCmd(opts),
		userCmd(opts),
		postCmd(opts),
		publishCmd(opts),
		followCmd(opts),
		deliveriesCmd(opts),
	)
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
