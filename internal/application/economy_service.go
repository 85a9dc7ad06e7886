package application

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/sirupsen/logrus"
)

type EconomyConfig struct {
	EarnInterval     time.Duration
	SpendInterval    time.Duration
	StaleAfter       time.Duration
	ReminderInterval time.Duration
	ProductiveRate   float64
	NeutralRate      float64
	DrainingRate     float64
}

func DefaultEconomyConfig() EconomyConfig {
	return EconomyConfig{
		EarnInterval:     60 * time.Second,
		SpendInterval:    15 * time.Second,
		StaleAfter:       5 * time.Minute,
		ReminderInterval: 10 * time.Minute,
		ProductiveRate:   1.0,
		NeutralRate:      0.5,
		DrainingRate:     2.0,
	}
}

func (c EconomyConfig) withDefaults() EconomyConfig {
	defaults := DefaultEconomyConfig()
	if c.EarnInterval <= 0 {
		c.EarnInterval = defaults.EarnInterval
	}
	if c.SpendInterval <= 0 {
		c.SpendInterval = defaults.SpendInterval
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaults.StaleAfter
	}
	if c.ReminderInterval <= 0 {
		c.ReminderInterval = defaults.ReminderInterval
	}
	return c
}

type EarnResult struct {
	Skipped     bool
	SkipReason  string
	Destination string
	Rate        float64
	Earned      int64
}

type SpendResult struct {
	Elapsed float64
	Drained int64
	Tick    TickSummary
}

// EconomyService bridges classifier reports into ledger and session
// operations. The two tick methods are driven by the scheduler adapter.
type EconomyService struct {
	ledger  *LedgerService
	market  *MarketService
	paywall *PaywallService
	events  ports.EventPublisher
	clock   ports.Clock
	log     logrus.FieldLogger
	cfg     EconomyConfig

	mu             sync.Mutex
	state          domain.EconomyState
	earnRemainder  float64
	drainRemainder float64
	lastSpendTick  time.Time
}

func NewEconomyService(ledger *LedgerService, market *MarketService, paywall *PaywallService, events ports.EventPublisher, clock ports.Clock, log logrus.FieldLogger, cfg EconomyConfig) *EconomyService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if events == nil {
		events = ports.NopPublisher{}
	}

	return &EconomyService{
		ledger:  ledger,
		market:  market,
		paywall: paywall,
		events:  events,
		clock:   clock,
		log:     loggerOrDiscard(log),
		cfg:     cfg.withDefaults(),
	}
}

func (s *EconomyService) Config() EconomyConfig {
	return s.cfg
}

// ReportActivity replaces the current economy state with the report.
func (s *EconomyService) ReportActivity(report domain.ActivityReport) domain.EconomyState {
	at := report.Timestamp
	if at.IsZero() {
		at = s.clock.Now()
	}

	s.mu.Lock()
	s.state = domain.EconomyState{
		ActiveCategory:    report.Category,
		ActiveDestination: domain.NormalizeDestination(report.Destination),
		ActiveApp:         report.App,
		ActiveURL:         report.URL,
		LastUpdatedAt:     at,
		NeutralClockedIn:  s.state.NeutralClockedIn,
	}
	state := s.state
	s.mu.Unlock()

	if state.ActiveCategory == domain.CategoryFrivolity && state.ActiveDestination != "" &&
		!s.paywall.HasValidPass(state.ActiveDestination, state.ActiveURL) {
		s.events.Publish(domain.Event{
			Type:        domain.EventPaywallRequired,
			At:          s.clock.Now(),
			Destination: state.ActiveDestination,
			URL:         state.ActiveURL,
		})
	}

	return state
}

func (s *EconomyService) State() domain.EconomyState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *EconomyService) ClockIn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.NeutralClockedIn = true
}

func (s *EconomyService) ClockOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.NeutralClockedIn = false
}

// EarnTick credits one earn interval of productive (or clocked-in neutral) time.
func (s *EconomyService) EarnTick(ctx context.Context) (EarnResult, error) {
	if err := ctx.Err(); err != nil {
		return EarnResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	state := s.state
	if state.IsStale(now, s.cfg.StaleAfter) {
		return EarnResult{Skipped: true, SkipReason: "stale"}, nil
	}
	if !state.Earns() {
		return EarnResult{Skipped: true, SkipReason: string(state.ActiveCategory)}, nil
	}

	rate := s.earnRateLocked(ctx, state, now)
	accrued := rate*s.cfg.EarnInterval.Seconds()/60 + s.earnRemainder
	earned := int64(math.Floor(accrued + chargeEpsilon))
	result := EarnResult{Destination: state.ActiveDestination, Rate: rate}
	if earned <= 0 {
		s.earnRemainder = math.Max(accrued, 0)
		return result, nil
	}

	if _, err := s.ledger.Earn(ctx, float64(earned), map[string]string{
		domain.MetaReason:      string(state.ActiveCategory),
		domain.MetaDestination: state.ActiveDestination,
	}); err != nil {
		s.earnRemainder = accrued
		return result, fmt.Errorf("earn tick: %w", err)
	}

	s.earnRemainder = math.Max(accrued-float64(earned), 0)
	result.Earned = earned
	return result, nil
}

// SpendTick charges live sessions for the wall-clock time elapsed since the
// previous spend tick and debits draining activity.
func (s *EconomyService) SpendTick(ctx context.Context) (SpendResult, error) {
	if err := ctx.Err(); err != nil {
		return SpendResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	elapsed := s.cfg.SpendInterval.Seconds()
	if !s.lastSpendTick.IsZero() {
		elapsed = math.Max(now.Sub(s.lastSpendTick).Seconds(), 0)
	}
	s.lastSpendTick = now

	state := s.state
	dest, url := state.Target(now, s.cfg.StaleAfter)
	result := SpendResult{Elapsed: elapsed}
	result.Tick = s.paywall.Tick(ctx, TickInput{
		IntervalSeconds:   elapsed,
		ActiveDestination: dest,
		ActiveURL:         url,
		ReminderInterval:  s.cfg.ReminderInterval,
	})

	if state.ActiveCategory != domain.CategoryDraining || state.IsStale(now, s.cfg.StaleAfter) {
		return result, nil
	}

	drained, err := s.drainLocked(ctx, state, now, elapsed)
	result.Drained = drained
	return result, err
}

func (s *EconomyService) drainLocked(ctx context.Context, state domain.EconomyState, now time.Time, elapsed float64) (int64, error) {
	rate := s.cfg.DrainingRate
	if state.ActiveDestination != "" {
		if market, err := s.market.GetRate(ctx, state.ActiveDestination); err == nil {
			rate = market.EffectiveRate(now)
		}
	}

	accrued := rate*elapsed/60 + s.drainRemainder
	charge := int64(math.Floor(accrued + chargeEpsilon))
	s.drainRemainder = math.Max(accrued-float64(charge), 0)
	if charge <= 0 {
		return 0, nil
	}

	balance, err := s.ledger.Balance(ctx)
	if err != nil {
		s.drainRemainder = accrued
		return 0, err
	}
	if charge > balance.Balance {
		charge = balance.Balance
	}
	if charge <= 0 {
		return 0, nil
	}

	if _, err := s.ledger.Spend(ctx, float64(charge), map[string]string{
		domain.MetaReason:      string(domain.CategoryDraining),
		domain.MetaDestination: state.ActiveDestination,
	}); err != nil {
		s.drainRemainder = accrued
		return 0, fmt.Errorf("drain tick: %w", err)
	}

	return charge, nil
}

func (s *EconomyService) earnRateLocked(ctx context.Context, state domain.EconomyState, now time.Time) float64 {
	if state.ActiveDestination != "" {
		rate, err := s.market.GetRate(ctx, state.ActiveDestination)
		if err == nil {
			return rate.EffectiveRate(now)
		}
		if !errors.Is(err, domain.ErrRateNotConfigured) {
			s.log.WithError(err).WithField("destination", state.ActiveDestination).Warn("earn rate lookup failed")
		}
	}

	if state.ActiveCategory == domain.CategoryNeutral {
		return s.cfg.NeutralRate
	}
	return s.cfg.ProductiveRate
}

func (s *EconomyService) QuotePack(ctx context.Context, destination string, minutes int, filter domain.ColorFilter) (domain.PackQuote, error) {
	rate, err := s.market.EnsureRate(ctx, destination)
	if err != nil {
		return domain.PackQuote{}, err
	}
	pack, ok := rate.Pack(minutes)
	if !ok {
		return domain.PackQuote{}, fmt.Errorf("%w: %d minutes for %s", domain.ErrPackNotFound, minutes, rate.Destination)
	}

	filter = colorOrDefault(filter)
	chain := s.paywall.PackChainCount(rate.Destination)
	return domain.PackQuote{
		Destination:            rate.Destination,
		Minutes:                pack.Minutes,
		BasePrice:              pack.Price,
		ChainCount:             chain,
		ColorFilter:            filter,
		Price:                  domain.PackPrice(pack.Price, chain, filter),
		EffectiveRatePerMinute: rate.EffectiveRate(s.clock.Now()) * filter.Multiplier(),
	}, nil
}

// BuyPack prices the pack with the current chain and colour filter and buys it.
func (s *EconomyService) BuyPack(ctx context.Context, destination string, minutes int, filter domain.ColorFilter) (domain.Session, error) {
	quote, err := s.QuotePack(ctx, destination, minutes, filter)
	if err != nil {
		return domain.Session{}, err
	}

	return s.paywall.BuyPack(ctx, BuyPackCommand{
		Destination:            quote.Destination,
		Minutes:                quote.Minutes,
		Price:                  quote.Price,
		ColorFilter:            quote.ColorFilter,
		EffectiveRatePerMinute: quote.EffectiveRatePerMinute,
	})
}

func (s *EconomyService) QuoteMetered(ctx context.Context, destination string, filter domain.ColorFilter) (domain.MeteredQuote, error) {
	rate, err := s.market.EnsureRate(ctx, destination)
	if err != nil {
		return domain.MeteredQuote{}, err
	}

	filter = colorOrDefault(filter)
	modifier := rate.Modifier(s.clock.Now())
	return domain.MeteredQuote{
		Destination:   rate.Destination,
		ColorFilter:   filter,
		BaseRate:      rate.RatePerMinute,
		HourModifier:  modifier,
		RatePerMinute: domain.MeteredRate(rate.RatePerMinute, filter) * modifier,
	}, nil
}

func (s *EconomyService) StartMetered(ctx context.Context, destination string, filter domain.ColorFilter) (domain.Session, error) {
	quote, err := s.QuoteMetered(ctx, destination, filter)
	if err != nil {
		return domain.Session{}, err
	}

	return s.paywall.StartMetered(ctx, StartMeteredCommand{
		Destination:       quote.Destination,
		EffectiveRate:     quote.RatePerMinute,
		MeteredMultiplier: domain.MeteredPremium,
		ColorFilter:       quote.ColorFilter,
	})
}
