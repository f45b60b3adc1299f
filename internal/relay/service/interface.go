package service

import (
	"context"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/relay/hub"
)

// StreamService is the relay's session logic: one method per inbound
// message type, plus disconnect handling and session discovery.
type StreamService interface {
	HandleAuth(ctx context.Context, c *hub.Client, token string) error
	HandleHostStart(ctx context.Context, c *hub.Client, msg domain.HostStartMessage) error
	HandleHostUpdate(ctx context.Context, c *hub.Client, msg domain.HostUpdateMessage) error
	HandleHostEnd(ctx context.Context, c *hub.Client) error
	HandleListenerJoin(ctx context.Context, c *hub.Client, msg domain.ListenerJoinMessage) error
	HandleListenerLeave(ctx context.Context, c *hub.Client) error
	HandleChat(ctx context.Context, c *hub.Client, text string) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error
	ActiveSessions(ctx context.Context) ([]*domain.Snapshot, error)
	Stop() error
}
