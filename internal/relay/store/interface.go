package store

import (
	"context"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

// SessionStore persists the authoritative snapshot of each live
// session, keyed by host id. A Redis backend lets several relay
// instances agree on what is live; the in-memory backend is for
// single-instance deployments and tests.
type SessionStore interface {
	Save(ctx context.Context, snap *domain.Snapshot) error
	Get(ctx context.Context, hostID string) (*domain.Snapshot, error)
	Delete(ctx context.Context, hostID string) error
	ListActive(ctx context.Context) ([]*domain.Snapshot, error)
	Close() error
}
