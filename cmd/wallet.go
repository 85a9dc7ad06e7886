package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/spf13/cobra"
)

func newWalletCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect and move coins",
	}

	cmd.AddCommand(
		newWalletBalanceCmd(app),
		newWalletHistoryCmd(app),
		newWalletEarnCmd(app),
		newWalletSpendCmd(app),
		newWalletAdjustCmd(app),
	)

	return cmd
}

func newWalletBalanceCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print the current balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := app.ledger.Balance(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snapshot)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), snapshot.Balance)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newWalletHistoryCmd(app *app) *cobra.Command {
	var (
		since  time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List transactions, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var from time.Time
			if since > 0 {
				from = app.now().Add(-since)
			}

			txs, err := app.ledger.ListTransactionsSince(cmd.Context(), from)
			if err != nil {
				return err
			}
			if asJSON {
				if txs == nil {
					txs = []domain.Transaction{}
				}
				return writeJSON(cmd, txs)
			}

			for _, tx := range txs {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%+d\t%s\n",
					tx.Timestamp.Local().Format(time.RFC3339),
					tx.Kind,
					tx.Delta(),
					formatMeta(tx.Meta),
				)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to list; 0 lists everything")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newWalletEarnCmd(app *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "earn <amount>",
		Short: "Credit coins; fractional amounts are rounded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse amount %q: %w", args[0], err)
			}
			snapshot, err := app.ledger.Earn(cmd.Context(), amount, reasonMeta(reason))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "balance: %d\n", snapshot.Balance)
			return err
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded on the transaction")
	return cmd
}

func newWalletSpendCmd(app *app) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "spend <amount>",
		Short: "Debit coins; fails when the balance is too low",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("parse amount %q: %w", args[0], err)
			}
			snapshot, err := app.ledger.Spend(cmd.Context(), amount, reasonMeta(reason))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "balance: %d\n", snapshot.Balance)
			return err
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded on the transaction")
	return cmd
}

func newWalletAdjustCmd(app *app) *cobra.Command {
	var (
		delta  int64
		reason string
	)

	cmd := &cobra.Command{
		Use:   "adjust --by <delta>",
		Short: "Apply a signed correction; the balance never drops below zero",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := app.ledger.Adjust(cmd.Context(), delta, reasonMeta(reason))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "balance: %d\n", snapshot.Balance)
			return err
		},
	}

	cmd.Flags().Int64Var(&delta, "by", 0, "Signed number of coins to apply")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded on the transaction")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func reasonMeta(reason string) map[string]string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil
	}
	return map[string]string{domain.MetaReason: reason}
}

func formatMeta(meta map[string]string) string {
	if len(meta) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+meta[key])
	}
	return strings.Join(parts, " ")
}
