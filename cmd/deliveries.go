package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/xlog-social/xlog/domain"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00D7FF")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Padding(0, 1)
)

const lastErrorColumn = 4

func deliveriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Inspect outbound deliveries",
	}
	cmd.AddCommand(deliveriesFailedCmd(opts))
	return cmd
}

func deliveriesFailedCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List the most recently failed deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, func(a *app) error {
				rows, err := a.store.ReadFailedDeliveries(ctx, limit)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failed deliveries")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), failedTable(rows))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to show")
	return cmd
}

func failedTable(rows []domain.Delivery) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#585858"))).
		Headers("KIND", "INBOX", "ATTEMPTS", "UPDATED", "LAST ERROR").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == lastErrorColumn:
				return errorStyle
			default:
				return cellStyle
			}
		})

	for _, d := range rows {
		t.Row(
			string(d.Kind),
			d.RemoteInbox,
			strconv.Itoa(d.AttemptCount),
			d.UpdatedAt.Format("2006-01-02 15:04:05"),
			d.LastError,
		)
	}
	return t
}
