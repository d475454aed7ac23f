package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func followCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "follow <username> <actor-url>",
		Short: "Send a Follow from a local account to a remote actor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, func(a *app) error {
				f, err := a.publisher().Follow(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				state := "pending"
				if f.Accepted {
					state = "accepted"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Following %s (%s)\n", f.RemoteActor, state)
				return nil
			})
		},
	}
}
