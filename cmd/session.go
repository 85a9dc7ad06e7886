package cmd

import (
	"errors"
	"fmt"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/spf13/cobra"
)

var errNoValidPass = errors.New("no valid pass")

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Open, inspect and close access sessions",
	}

	cmd.AddCommand(
		newSessionMeteredCmd(app),
		newSessionPackCmd(app),
		newSessionStoreCmd(app),
		newSessionQuoteCmd(app),
		newSessionEndCmd(app, "cancel", "Cancel a pack and refund its unused time", true),
		newSessionEndCmd(app, "end", "End a session without refund", false),
		newSessionPauseCmd(app),
		newSessionResumeCmd(app),
		newSessionListCmd(app),
		newSessionPassCmd(app),
	)

	return cmd
}

func colorFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVar(target, "color", string(domain.ColorFull), "Colour filter: full-color, greyscale or redscale")
}

func newSessionMeteredCmd(app *app) *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "metered <destination>",
		Short: "Pay per minute while the destination is in focus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := domain.ParseColorFilter(color)
			if err != nil {
				return err
			}
			session, err := app.economy.StartMetered(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			return printSession(cmd, session)
		},
	}

	colorFlag(cmd, &color)
	return cmd
}

func newSessionPackCmd(app *app) *cobra.Command {
	var (
		minutes int
		color   string
	)

	cmd := &cobra.Command{
		Use:   "pack <destination>",
		Short: "Buy a prepaid block of minutes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := domain.ParseColorFilter(color)
			if err != nil {
				return err
			}
			session, err := app.economy.BuyPack(cmd.Context(), args[0], minutes, filter)
			if err != nil {
				return err
			}
			return printSession(cmd, session)
		},
	}

	cmd.Flags().IntVar(&minutes, "minutes", 10, "Pack length in minutes")
	colorFlag(cmd, &color)
	return cmd
}

func newSessionStoreCmd(app *app) *cobra.Command {
	var (
		price int64
		url   string
	)

	cmd := &cobra.Command{
		Use:   "store <destination>",
		Short: "Buy an untimed pass for a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.paywall.StartStore(cmd.Context(), application.StartStoreCommand{
				Destination: args[0],
				Price:       price,
				URL:         url,
			})
			if err != nil {
				return err
			}
			return printSession(cmd, session)
		},
	}

	cmd.Flags().Int64Var(&price, "price", 0, "Price in coins")
	cmd.Flags().StringVar(&url, "url", "", "Item URL")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newSessionQuoteCmd(app *app) *cobra.Command {
	var (
		minutes int
		color   string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "quote <destination>",
		Short: "Price a pack (with --minutes) or metered access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := domain.ParseColorFilter(color)
			if err != nil {
				return err
			}

			if minutes > 0 {
				quote, err := app.economy.QuotePack(cmd.Context(), args[0], minutes, filter)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, quote)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d minutes for %d coins (base %d, chain %d, %s)\n",
					quote.Destination, quote.Minutes, quote.Price, quote.BasePrice, quote.ChainCount, quote.ColorFilter)
				return err
			}

			quote, err := app.economy.QuoteMetered(cmd.Context(), args[0], filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, quote)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %.2f coins/min metered (%s)\n", quote.Destination, quote.RatePerMinute, quote.ColorFilter)
			return err
		},
	}

	cmd.Flags().IntVar(&minutes, "minutes", 0, "Quote a pack of this length instead of metered access")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	colorFlag(cmd, &color)
	return cmd
}

func newSessionEndCmd(app *app, use, short string, refund bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <destination>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				result application.EndSessionResult
				err    error
			)
			if refund {
				result, err = app.paywall.CancelPack(cmd.Context(), args[0])
			} else {
				result, err = app.paywall.EndSession(cmd.Context(), args[0], domain.EndReasonEnded, application.EndSessionOptions{})
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, refund %d\n", result.Session.Destination, result.Reason, result.Refund)
			return err
		},
	}
}

func newSessionPauseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <destination>",
		Short: "Hold a session paused until resumed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.paywall.Pause(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(cmd, session)
		},
	}
}

func newSessionResumeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <destination>",
		Short: "Release a hold placed with pause",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.paywall.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(cmd, session)
		},
	}
}

func newSessionListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sessions := app.paywall.ListSessions()
			if asJSON {
				if sessions == nil {
					sessions = []domain.Session{}
				}
				return writeJSON(cmd, sessions)
			}
			for _, session := range sessions {
				if err := printSession(cmd, session); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newSessionPassCmd(app *app) *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "pass <destination>",
		Short: "Exit non-zero unless a live session admits the destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.paywall.HasValidPass(args[0], url) {
				return fmt.Errorf("%s: %w", domain.NormalizeDestination(args[0]), errNoValidPass)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return err
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "URL being visited, checked against URL locks")
	return cmd
}

func printSession(cmd *cobra.Command, session domain.Session) error {
	line := fmt.Sprintf("%s\t%s", session.Destination, session.Mode)
	switch {
	case session.Mode == domain.SessionMetered:
		line += fmt.Sprintf("\t%.2f/min\tcharged %d", session.RatePerMinute, session.TotalCharged)
	case session.Timed:
		line += fmt.Sprintf("\t%.0fs left", session.RemainingSeconds)
	}
	if session.Held {
		line += "\theld"
	} else if session.Paused {
		line += "\tpaused"
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), line)
	return err
}
