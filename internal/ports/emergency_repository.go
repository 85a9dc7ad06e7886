package ports

import (
	"context"

	"github.com/bnema/focuscoin/internal/domain"
)

type EmergencyRepository interface {
	Usage(ctx context.Context) (domain.EmergencyUsage, error)
	SaveUsage(ctx context.Context, usage domain.EmergencyUsage) error
	Policy(ctx context.Context) (domain.EmergencyPolicyID, error)
	SavePolicy(ctx context.Context, id domain.EmergencyPolicyID) error
}

type ConsumptionLog interface {
	Record(ctx context.Context, entry domain.ConsumptionEntry) error
}
