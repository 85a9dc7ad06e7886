package cmd

import (
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/focuscoin/internal/adapters/render/status"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var (
		asJSON bool
		recent int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show wallet balance, live sessions and emergency usage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := app.status.Status(cmd.Context(), recent)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, status)
			}

			rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{
				Now:          app.now(),
				Transactions: recent,
			})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().IntVar(&recent, "transactions", 5, "Number of recent transactions to show")

	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
