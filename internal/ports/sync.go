package ports

import (
	"context"
	"time"

	"github.com/bnema/focuscoin/internal/domain"
)

// SyncPeer is the remote side of the sync bridge.
type SyncPeer interface {
	Pull(ctx context.Context, since time.Time) ([]domain.RemoteTransaction, error)
	Push(ctx context.Context, records []domain.RemoteTransaction) error
}

type SyncCursorStore interface {
	Cursor(ctx context.Context, peer string) (time.Time, error)
	SaveCursor(ctx context.Context, peer string, at time.Time) error
}
