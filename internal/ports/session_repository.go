package ports

import (
	"context"

	"github.com/bnema/focuscoin/internal/domain"
)

// SessionRepository is shared by every process on the device, so writes are
// guarded by Session.Revision.
type SessionRepository interface {
	List(ctx context.Context) ([]domain.Session, error)
	// Get returns domain.ErrSessionNotFound when no session is stored.
	Get(ctx context.Context, destination string) (domain.Session, error)
	// Save inserts the session when its Revision is zero and fails with
	// domain.ErrSessionConflict if one is already stored. Otherwise it
	// updates the stored row only while its revision still matches, and
	// fails with domain.ErrSessionChanged when it does not.
	Save(ctx context.Context, session domain.Session) (domain.Session, error)
	Delete(ctx context.Context, destination string) error
	PackChains(ctx context.Context) (map[string]int, error)
	SavePackChain(ctx context.Context, destination string, count int) error
}
