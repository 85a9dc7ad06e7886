package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/spf13/cobra"
)

func newRateCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate",
		Short: "Manage per-destination market rates",
	}

	cmd.AddCommand(
		newRateGetCmd(app),
		newRateListCmd(app),
		newRateSetCmd(app),
	)

	return cmd
}

func newRateGetCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <destination>",
		Short: "Show the rate configured for a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := app.market.GetRate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, rate)
			}
			return printRate(cmd, app, rate)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newRateListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured rates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rates, err := app.market.ListRates(cmd.Context())
			if err != nil {
				return err
			}
			for _, rate := range rates {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.2f/min\t%s\n", rate.Destination, app.market.CurrentRate(rate), formatPacks(rate.Packs))
			}
			return nil
		},
	}
}

func newRateSetCmd(app *app) *cobra.Command {
	var (
		perMinute float64
		packs     []string
		hours     []string
	)

	cmd := &cobra.Command{
		Use:   "set <destination>",
		Short: "Create or replace a destination rate",
		Long:  "Create or replace a destination rate. Rejected while a session for the destination is live.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate, err := app.market.GetRate(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrRateNotConfigured) {
				rate = domain.DefaultMarketRate(args[0], app.now())
			} else if err != nil {
				return err
			}

			if cmd.Flags().Changed("per-minute") {
				rate.RatePerMinute = perMinute
			}
			if len(packs) > 0 {
				parsed, err := parsePacks(packs)
				if err != nil {
					return err
				}
				rate.Packs = parsed
			}
			for _, raw := range hours {
				hour, modifier, err := parseHourModifier(raw)
				if err != nil {
					return err
				}
				rate.HourlyModifiers[hour] = modifier
			}

			saved, err := app.paywall.UpdateRate(cmd.Context(), rate)
			if err != nil {
				return err
			}
			return printRate(cmd, app, saved)
		},
	}

	cmd.Flags().Float64Var(&perMinute, "per-minute", domain.DefaultRatePerMinute, "Base metered rate in coins per minute")
	cmd.Flags().StringSliceVar(&packs, "pack", nil, "Pack as minutes:price, repeatable; replaces all packs")
	cmd.Flags().StringSliceVar(&hours, "hour", nil, "Hourly modifier as hour=multiplier, repeatable")
	return cmd
}

func printRate(cmd *cobra.Command, app *app, rate domain.MarketRate) error {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "destination: %s\n", rate.Destination)
	_, _ = fmt.Fprintf(out, "rate: %.2f/min (now %.2f/min)\n", rate.RatePerMinute, app.market.CurrentRate(rate))
	_, _ = fmt.Fprintf(out, "packs: %s\n", formatPacks(rate.Packs))

	var modifiers []string
	for hour, mod := range rate.HourlyModifiers {
		if mod != 1 {
			modifiers = append(modifiers, fmt.Sprintf("%02d=%g", hour, mod))
		}
	}
	if len(modifiers) > 0 {
		_, _ = fmt.Fprintf(out, "hours: %s\n", strings.Join(modifiers, " "))
	}
	return nil
}

func formatPacks(packs []domain.Pack) string {
	if len(packs) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(packs))
	for _, pack := range packs {
		parts = append(parts, fmt.Sprintf("%dm:%d", pack.Minutes, pack.Price))
	}
	return strings.Join(parts, " ")
}

func parsePacks(raw []string) ([]domain.Pack, error) {
	packs := make([]domain.Pack, 0, len(raw))
	for _, entry := range raw {
		minutesRaw, priceRaw, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok {
			return nil, fmt.Errorf("invalid pack %q, want minutes:price", entry)
		}
		minutes, err := strconv.Atoi(strings.TrimSuffix(minutesRaw, "m"))
		if err != nil {
			return nil, fmt.Errorf("invalid pack minutes %q: %w", entry, err)
		}
		price, err := strconv.ParseInt(priceRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pack price %q: %w", entry, err)
		}
		packs = append(packs, domain.Pack{Minutes: minutes, Price: price})
	}
	return packs, nil
}

func parseHourModifier(raw string) (int, float64, error) {
	hourRaw, modRaw, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return 0, 0, fmt.Errorf("invalid hour modifier %q, want hour=multiplier", raw)
	}
	hour, err := strconv.Atoi(hourRaw)
	if err != nil || hour < 0 || hour >= domain.HoursPerDay {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	modifier, err := strconv.ParseFloat(modRaw, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid multiplier in %q: %w", raw, err)
	}
	return hour, modifier, nil
}
