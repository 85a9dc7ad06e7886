package application

import (
	"context"
	"fmt"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/sirupsen/logrus"
)

type MergeReport struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Dropped    int `json:"dropped"`
}

type SyncReport struct {
	Peer   string      `json:"peer"`
	Pushed int         `json:"pushed"`
	Pulled MergeReport `json:"pulled"`
	Cursor time.Time   `json:"cursor"`
}

// SyncService implements both sides of the sync contract on top of the ledger.
type SyncService struct {
	ledger  *LedgerService
	cursors ports.SyncCursorStore
	clock   ports.Clock
	log     logrus.FieldLogger
}

func NewSyncService(ledger *LedgerService, cursors ports.SyncCursorStore, clock ports.Clock, log logrus.FieldLogger) *SyncService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &SyncService{ledger: ledger, cursors: cursors, clock: clock, log: loggerOrDiscard(log)}
}

// Export returns the transactions this device originated at or after since.
// Records merged from a peer are not echoed back.
func (s *SyncService) Export(ctx context.Context, since time.Time) ([]domain.RemoteTransaction, error) {
	txs, err := s.ledger.ListTransactionsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RemoteTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Origin != "" && tx.Origin != s.ledger.DeviceID() {
			continue
		}
		out = append(out, tx.Remote())
	}
	return out, nil
}

// Merge applies every record independently; malformed records are dropped and
// the batch continues.
func (s *SyncService) Merge(ctx context.Context, records []domain.RemoteTransaction) (MergeReport, error) {
	var report MergeReport
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		_, applied, err := s.ledger.ApplyRemoteTransaction(ctx, record)
		switch {
		case err != nil:
			report.Dropped++
			s.log.WithError(err).WithFields(logrus.Fields{
				"sync_id": record.SyncID,
				"kind":    record.Kind,
			}).Warn("dropping remote transaction")
		case applied:
			report.Applied++
		default:
			report.Duplicates++
		}
	}

	return report, nil
}

// SyncWith pushes local records newer than the peer cursor, pulls the peer's
// records and advances the cursor to the start of this exchange.
func (s *SyncService) SyncWith(ctx context.Context, name string, peer ports.SyncPeer) (SyncReport, error) {
	cursor, err := s.cursors.Cursor(ctx, name)
	if err != nil {
		return SyncReport{}, fmt.Errorf("load sync cursor %s: %w", name, err)
	}
	started := s.clock.Now().UTC()

	outbound, err := s.Export(ctx, cursor)
	if err != nil {
		return SyncReport{}, err
	}
	if len(outbound) > 0 {
		if err := peer.Push(ctx, outbound); err != nil {
			return SyncReport{}, fmt.Errorf("push to %s: %w", name, err)
		}
	}

	inbound, err := peer.Pull(ctx, cursor)
	if err != nil {
		return SyncReport{}, fmt.Errorf("pull from %s: %w", name, err)
	}
	merged, err := s.Merge(ctx, inbound)
	if err != nil {
		return SyncReport{}, err
	}

	if err := s.cursors.SaveCursor(ctx, name, started); err != nil {
		return SyncReport{}, fmt.Errorf("save sync cursor %s: %w", name, err)
	}

	return SyncReport{Peer: name, Pushed: len(outbound), Pulled: merged, Cursor: started}, nil
}
