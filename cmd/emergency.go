package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/focuscoin/internal/application"
	"github.com/bnema/focuscoin/internal/domain"
	"github.com/spf13/cobra"
)

func newEmergencyCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Unlock a destination without paying, within the emergency policy",
	}

	cmd.AddCommand(
		newEmergencyStartCmd(app),
		newEmergencyStatusCmd(app),
		newEmergencyPolicyCmd(app),
		newEmergencyLogCmd(app),
	)

	return cmd
}

func newEmergencyStartCmd(app *app) *cobra.Command {
	var (
		reason string
		url    string
	)

	cmd := &cobra.Command{
		Use:   "start <destination>",
		Short: "Start an emergency session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := app.emergency.Start(cmd.Context(), application.EmergencyStartCommand{
				Destination:   args[0],
				Justification: reason,
				URL:           url,
			})
			if err != nil {
				var cooldown *domain.CooldownError
				if errors.As(err, &cooldown) {
					return fmt.Errorf("emergency cooling down until %s: %w", cooldown.Until.Local().Format("15:04"), domain.ErrCooldownActive)
				}
				return err
			}
			return printSession(cmd, session)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why access is needed")
	cmd.Flags().StringVar(&url, "url", "", "URL to lock the session to, when the policy locks URLs")
	return cmd
}

func newEmergencyStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the policy, tokens left and cooldown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := app.emergency.Status(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "policy: %s\n", status.Policy.ID)
			if status.Policy.DailyTokens == domain.UnlimitedTokens {
				_, _ = fmt.Fprintln(out, "tokens left: unlimited")
			} else {
				_, _ = fmt.Fprintf(out, "tokens left: %d/%d\n", status.TokensLeft, status.Policy.DailyTokens)
			}
			if status.CoolingDown {
				_, _ = fmt.Fprintf(out, "cooldown: %s\n", (time.Duration(status.CooldownLeftMs) * time.Millisecond).Round(time.Second))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newEmergencyPolicyCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:       "policy [off|gentle|balanced|strict]",
		Short:     "Show or select the emergency policy",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"off", "gentle", "balanced", "strict"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				policy domain.EmergencyPolicy
				err    error
			)
			if len(args) == 0 {
				policy, err = app.emergency.Policy(cmd.Context())
			} else {
				policy, err = app.emergency.SetPolicy(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\tallowed=%t\ttokens=%s\tcooldown=%s\tdebt=%d\tduration=%s\tlock-url=%t\n",
				policy.ID, policy.Allowed, tokensLabel(policy.DailyTokens), policy.Cooldown, policy.DebtCoins, policy.Duration, policy.LockURL)
			return err
		},
	}
}

func newEmergencyLogCmd(app *app) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List granted emergency sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var from time.Time
			if since > 0 {
				from = app.now().Add(-since)
			}
			entries, err := app.store.Consumption(cmd.Context(), from)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\tdebt %d\t%s\n",
					entry.Timestamp.Local().Format(time.RFC3339), entry.Destination, entry.PolicyID, entry.DebtCoins, entry.Justification)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 7*24*time.Hour, "How far back to list; 0 lists everything")
	return cmd
}

func tokensLabel(tokens int) string {
	if tokens == domain.UnlimitedTokens {
		return "unlimited"
	}
	return fmt.Sprintf("%d", tokens)
}
