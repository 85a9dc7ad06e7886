package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
	"github.com/bnema/focuscoin/internal/ports"
	"github.com/google/uuid"
)

// LedgerService owns the wallet balance. Every mutation publishes
// wallet-updated with the resulting snapshot.
type LedgerService struct {
	store    ports.LedgerStore
	events   ports.EventPublisher
	clock    ports.Clock
	deviceID string
	mu       sync.Mutex
}

func NewLedgerService(store ports.LedgerStore, events ports.EventPublisher, clock ports.Clock, deviceID string) *LedgerService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if events == nil {
		events = ports.NopPublisher{}
	}

	return &LedgerService{store: store, events: events, clock: clock, deviceID: deviceID}
}

func (s *LedgerService) DeviceID() string {
	return s.deviceID
}

func (s *LedgerService) Balance(ctx context.Context) (domain.WalletSnapshot, error) {
	snapshot, err := s.store.Snapshot(ctx)
	if err != nil {
		return domain.WalletSnapshot{}, fmt.Errorf("load wallet snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *LedgerService) Earn(ctx context.Context, amount float64, meta map[string]string) (domain.WalletSnapshot, error) {
	rounded, err := domain.RoundAmount(amount)
	if err != nil {
		return domain.WalletSnapshot{}, err
	}

	return s.append(ctx, domain.TransactionEarn, rounded, meta, ports.AppendStrict)
}

func (s *LedgerService) Spend(ctx context.Context, amount float64, meta map[string]string) (domain.WalletSnapshot, error) {
	rounded, err := domain.RoundAmount(amount)
	if err != nil {
		return domain.WalletSnapshot{}, err
	}

	return s.append(ctx, domain.TransactionSpend, rounded, meta, ports.AppendStrict)
}

// Adjust applies a signed delta. Negative deltas are floored so the balance
// stops at zero; a zero delta is a no-op.
func (s *LedgerService) Adjust(ctx context.Context, delta int64, meta map[string]string) (domain.WalletSnapshot, error) {
	if delta == 0 {
		return s.Balance(ctx)
	}

	return s.append(ctx, domain.TransactionAdjust, delta, meta, ports.AppendClamp)
}

// ApplyRemoteTransaction merges a record produced by another device. A sync id
// that is already present leaves the wallet untouched.
func (s *LedgerService) ApplyRemoteTransaction(ctx context.Context, record domain.RemoteTransaction) (domain.WalletSnapshot, bool, error) {
	if err := record.Validate(); err != nil {
		return domain.WalletSnapshot{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := record.Transaction()
	snapshot, written, err := s.store.Append(ctx, tx, ports.AppendRaw)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateSyncID) {
			current, snapErr := s.store.Snapshot(ctx)
			if snapErr != nil {
				return domain.WalletSnapshot{}, false, fmt.Errorf("load wallet snapshot: %w", snapErr)
			}
			return current, false, nil
		}
		return domain.WalletSnapshot{}, false, fmt.Errorf("apply remote transaction %s: %w", record.SyncID, err)
	}

	s.publish(snapshot, written)
	return snapshot, true, nil
}

func (s *LedgerService) ListTransactionsSince(ctx context.Context, since time.Time) ([]domain.Transaction, error) {
	txs, err := s.store.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *LedgerService) append(ctx context.Context, kind domain.TransactionKind, amount int64, meta map[string]string, mode ports.AppendMode) (domain.WalletSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta = domain.CopyMeta(meta)
	syncID := uuid.NewString()
	if supplied, ok := meta[domain.MetaSyncID]; ok {
		if supplied != "" {
			syncID = supplied
		}
		delete(meta, domain.MetaSyncID)
	}

	tx := domain.Transaction{
		SyncID:    syncID,
		Timestamp: s.clock.Now().UTC(),
		Kind:      kind,
		Amount:    amount,
		Meta:      meta,
		Origin:    s.deviceID,
	}

	snapshot, written, err := s.store.Append(ctx, tx, mode)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrDuplicateSyncID) {
			return domain.WalletSnapshot{}, err
		}
		return domain.WalletSnapshot{}, fmt.Errorf("append %s transaction: %w", kind, err)
	}

	s.publish(snapshot, written)
	return snapshot, nil
}

func (s *LedgerService) publish(snapshot domain.WalletSnapshot, tx domain.Transaction) {
	wallet := snapshot
	s.events.Publish(domain.Event{
		Type:        domain.EventWalletUpdated,
		At:          s.clock.Now(),
		Wallet:      &wallet,
		Transaction: &tx,
	})
}
