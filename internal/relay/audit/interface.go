package audit

import (
	"context"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

// Recorder records chat traffic for offline retention. Recording is
// best effort; delivery to connected participants never waits on it.
type Recorder interface {
	Record(ctx context.Context, msg *domain.ChatMessage) error
	Close() error
}
