package ports

import (
	"context"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
)

type AppendMode int

const (
	// AppendStrict rejects the append with domain.ErrInsufficientFunds when
	// the balance would go negative.
	AppendStrict AppendMode = iota
	// AppendClamp floors the balance at zero and records the delta actually applied.
	AppendClamp
	// AppendRaw applies the delta unchanged; used for remote merges.
	AppendRaw
)

// LedgerStore persists the balance and the transaction log. Append must update
// both atomically and return domain.ErrDuplicateSyncID without mutating
// anything when the sync id already exists.
type LedgerStore interface {
	Append(ctx context.Context, tx domain.Transaction, mode AppendMode) (domain.WalletSnapshot, domain.Transaction, error)
	Snapshot(ctx context.Context) (domain.WalletSnapshot, error)
	ListSince(ctx context.Context, since time.Time) ([]domain.Transaction, error)
}
