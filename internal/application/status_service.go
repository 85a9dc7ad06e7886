package application

import (
	"context"
	"time"

	"github.com/bnema/focuscoin/internal/ports"
)

const statusHistoryWindow = 24 * time.Hour

type StatusService struct {
	ledger    *LedgerService
	paywall   *PaywallService
	emergency *EmergencyService
	clock     ports.Clock
}

func NewStatusService(ledger *LedgerService, paywall *PaywallService, emergency *EmergencyService, clock ports.Clock) *StatusService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &StatusService{ledger: ledger, paywall: paywall, emergency: emergency, clock: clock}
}

// Status collects the wallet, live sessions, emergency usage and the most
// recent transactions of the last day, newest last.
func (s *StatusService) Status(ctx context.Context, recent int) (Status, error) {
	now := s.clock.Now()

	wallet, err := s.ledger.Balance(ctx)
	if err != nil {
		return Status{}, err
	}
	emergency, err := s.emergency.Status(ctx)
	if err != nil {
		return Status{}, err
	}
	txs, err := s.ledger.ListTransactionsSince(ctx, now.Add(-statusHistoryWindow))
	if err != nil {
		return Status{}, err
	}
	if recent >= 0 && len(txs) > recent {
		txs = txs[len(txs)-recent:]
	}

	return Status{
		GeneratedAt:  now,
		DeviceID:     s.ledger.DeviceID(),
		Wallet:       wallet,
		Sessions:     s.paywall.ListSessions(),
		Emergency:    emergency,
		Transactions: txs,
	}, nil
}
