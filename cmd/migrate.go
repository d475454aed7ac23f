package cmd

import (
	"github.com/spf13/cobra"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				a.log.WithField("driver", a.conf.Conf.Database.Driver).Info("Database is up to date")
				return nil
			})
		},
	}
}
