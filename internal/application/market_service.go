package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
)

type MarketService struct {
	rates ports.MarketRateRepository
	clock ports.Clock
}

func NewMarketService(rates ports.MarketRateRepository, clock ports.Clock) *MarketService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &MarketService{rates: rates, clock: clock}
}

// GetRate returns domain.ErrRateNotConfigured when the destination has no rate.
func (s *MarketService) GetRate(ctx context.Context, destination string) (domain.MarketRate, error) {
	dest := domain.NormalizeDestination(destination)
	if dest == "" {
		return domain.MarketRate{}, domain.ErrInvalidDestination
	}

	rate, err := s.rates.GetByDestination(ctx, dest)
	if err != nil {
		if errors.Is(err, domain.ErrRateNotConfigured) {
			return domain.MarketRate{}, err
		}
		return domain.MarketRate{}, fmt.Errorf("load market rate %s: %w", dest, err)
	}

	return rate, nil
}

func (s *MarketService) ListRates(ctx context.Context) ([]domain.MarketRate, error) {
	rates, err := s.rates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list market rates: %w", err)
	}
	return rates, nil
}

// UpsertRate fully replaces the stored rate. Callers guarding in-flight
// sessions go through PaywallService.UpdateRate.
func (s *MarketService) UpsertRate(ctx context.Context, rate domain.MarketRate) (domain.MarketRate, error) {
	rate.Destination = domain.NormalizeDestination(rate.Destination)
	rate.NormalizePacks()
	if err := rate.Validate(); err != nil {
		return domain.MarketRate{}, err
	}
	rate.UpdatedAt = s.clock.Now().UTC()

	if err := s.rates.Save(ctx, rate); err != nil {
		return domain.MarketRate{}, fmt.Errorf("save market rate %s: %w", rate.Destination, err)
	}

	return rate, nil
}

// EnsureRate seeds and persists the default rate for an unconfigured destination.
func (s *MarketService) EnsureRate(ctx context.Context, destination string) (domain.MarketRate, error) {
	rate, err := s.GetRate(ctx, destination)
	if err == nil {
		return rate, nil
	}
	if !errors.Is(err, domain.ErrRateNotConfigured) {
		return domain.MarketRate{}, err
	}

	return s.UpsertRate(ctx, domain.DefaultMarketRate(destination, s.clock.Now()))
}

// CurrentRate evaluates the hourly modifier at the clock's current local hour.
func (s *MarketService) CurrentRate(rate domain.MarketRate) float64 {
	return rate.EffectiveRate(s.clock.Now())
}
