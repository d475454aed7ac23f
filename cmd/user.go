package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xlog-social/xlog/activitypub"
	"github.com/xlog-social/xlog/domain"
	"github.com/xlog-social/xlog/util"
)

func userCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local accounts",
	}
	cmd.AddCommand(userAddCmd(opts))
	return cmd
}

func userAddCmd(opts *rootOptions) *cobra.Command {
	var displayName, summary string

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a local account with a fresh RSA keypair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(a *app) error {
				keys, err := util.GeneratePemKeypair(util.KeyBits)
				if err != nil {
					return err
				}
				acc := &domain.Account{
					Id:            uuid.New(),
					Username:      args[0],
					DisplayName:   displayName,
					Summary:       summary,
					PublicKeyPem:  keys.Public,
					PrivateKeyPem: keys.Private,
					CreatedAt:     time.Now(),
				}
				if err := a.store.CreateAccount(cmd.Context(), acc); err != nil {
					return err
				}

				settings, err := a.settings.Get(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", acc.Username, activitypub.ActorURL(settings.InstanceDomain, acc.Username))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&summary, "summary", "", "profile summary")
	return cmd
}
