package ports

import (
	"context"

	"github.com/bnema/focuscoin/internal/domain"
)

type MarketRateRepository interface {
	GetByDestination(ctx context.Context, destination string) (domain.MarketRate, error)
	List(ctx context.Context) ([]domain.MarketRate, error)
	Save(ctx context.Context, rate domain.MarketRate) error
}
