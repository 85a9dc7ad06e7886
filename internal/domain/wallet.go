package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

type TransactionKind string

const (
	TransactionEarn   TransactionKind = "earn"
	TransactionSpend  TransactionKind = "spend"
	TransactionAdjust TransactionKind = "adjust"
)

func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionEarn, TransactionSpend, TransactionAdjust:
		return true
	default:
		return false
	}
}

// Meta keys written by the engine itself.
const (
	MetaSyncID      = "syncId"
	MetaReason      = "reason"
	MetaDestination = "destination"
	MetaMode        = "mode"
	MetaRequested   = "requested"
)

type WalletSnapshot struct {
	Balance int64 `json:"balance"`
}

// Transaction is immutable once written. Amount is non-negative for earn
// and spend; adjust carries the signed delta that was applied.
type Transaction struct {
	ID        string            `json:"id"`
	SyncID    string            `json:"syncId"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      TransactionKind   `json:"kind"`
	Amount    int64             `json:"amount"`
	Meta      map[string]string `json:"meta,omitempty"`
	Origin    string            `json:"origin,omitempty"`
}

func (t Transaction) Delta() int64 {
	switch t.Kind {
	case TransactionEarn:
		return t.Amount
	case TransactionSpend:
		return -t.Amount
	default:
		return t.Amount
	}
}

// RemoteTransaction is the record delivered by the sync bridge.
type RemoteTransaction struct {
	SyncID    string            `json:"syncId"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      TransactionKind   `json:"kind"`
	Amount    int64             `json:"amount"`
	Meta      map[string]string `json:"meta,omitempty"`
	Origin    string            `json:"origin,omitempty"`
}

func (r RemoteTransaction) Validate() error {
	if strings.TrimSpace(r.SyncID) == "" {
		return fmt.Errorf("%w: sync id is required", ErrInvalidTransaction)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidTransaction)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransaction, r.Kind)
	}
	if r.Kind != TransactionAdjust && r.Amount < 0 {
		return fmt.Errorf("%w: negative %s amount", ErrInvalidTransaction, r.Kind)
	}

	return nil
}

func (r RemoteTransaction) Transaction() Transaction {
	return Transaction{
		SyncID:    r.SyncID,
		Timestamp: r.Timestamp,
		Kind:      r.Kind,
		Amount:    r.Amount,
		Meta:      CopyMeta(r.Meta),
		Origin:    r.Origin,
	}
}

func (t Transaction) Remote() RemoteTransaction {
	return RemoteTransaction{
		SyncID:    t.SyncID,
		Timestamp: t.Timestamp,
		Kind:      t.Kind,
		Amount:    t.Amount,
		Meta:      CopyMeta(t.Meta),
		Origin:    t.Origin,
	}
}

// RoundAmount validates a positive earn/spend request and rounds it to whole coins.
func RoundAmount(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}

	rounded := int64(math.Round(amount))
	if rounded <= 0 {
		return 0, fmt.Errorf("%w: %v rounds to zero", ErrInvalidAmount, amount)
	}

	return rounded, nil
}

func CopyMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}

	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
