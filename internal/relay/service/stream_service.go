package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/relay/audit"
	"github.com/cb3tech/moshcast-live/internal/relay/hub"
	"github.com/cb3tech/moshcast-live/internal/relay/store"
	"github.com/cb3tech/moshcast-live/pkg/jwt"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

type streamService struct {
	hub      *hub.Hub
	store    store.SessionStore
	recorder audit.Recorder
	tokens   *jwt.Manager // nil when auth is disabled
	cfg      config.SyncConfig
	now      func() time.Time

	mu    sync.Mutex
	hosts map[string]*hub.Client // hostID -> hosting connection
}

// NewStreamService wires the relay's session logic. tokens may be nil,
// in which case every connection stays a guest.
func NewStreamService(
	h *hub.Hub,
	st store.SessionStore,
	recorder audit.Recorder,
	tokens *jwt.Manager,
	cfg config.SyncConfig,
) StreamService {
	return &streamService{
		hub:      h,
		store:    st,
		recorder: recorder,
		tokens:   tokens,
		cfg:      cfg,
		now:      time.Now,
		hosts:    make(map[string]*hub.Client),
	}
}

func (s *streamService) HandleAuth(_ context.Context, c *hub.Client, token string) error {
	if s.tokens == nil {
		return c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "authentication is disabled",
		})
	}

	claims, err := s.tokens.Validate(token)
	if err != nil {
		c.SendMessage(&domain.AuthResultMessage{
			Type:    domain.MsgTypeAuthResult,
			Success: false,
			Message: "invalid token",
		})
		return fmt.Errorf("token rejected: %w", err)
	}

	c.Session.Authenticate(claims.UserID, claims.Username)

	return c.SendMessage(&domain.AuthResultMessage{
		Type:     domain.MsgTypeAuthResult,
		Success:  true,
		UserID:   claims.UserID,
		Username: claims.Username,
	})
}

func (s *streamService) HandleHostStart(ctx context.Context, c *hub.Client, msg domain.HostStartMessage) error {
	if msg.HostID == "" || msg.Track == nil || msg.Track.MediaURL == "" {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "host id and track are required"))
	}
	hostID := msg.HostID

	// A restart from another connection supersedes the previous one;
	// listeners stay tuned in and resync from the new snapshot.
	s.mu.Lock()
	prev := s.hosts[hostID]
	s.hosts[hostID] = c
	s.mu.Unlock()

	if prev != nil && prev.ID != c.ID {
		prev.Session.Detach()
		s.hub.LeaveSession(prev, hostID)
		prev.SendMessage(&domain.StreamEndedMessage{
			Type:    domain.MsgTypeStreamEnded,
			Message: "session taken over by another connection",
		})
	}

	c.Session.AttachHost(hostID)
	s.hub.JoinSession(c, hostID)

	snap := &domain.Snapshot{
		HostID:        hostID,
		Track:         msg.Track,
		Position:      0,
		IsPlaying:     true,
		ListenerCount: s.listenerCount(hostID),
		TimestampMS:   s.now().UnixMilli(),
	}
	if err := s.store.Save(ctx, snap); err != nil {
		c.SendMessage(domain.NewStreamError(domain.ErrCodeInternalError, "could not start session"))
		return fmt.Errorf("save session %s: %w", hostID, err)
	}

	// Listeners already in the group (a host restart) get the fresh
	// authoritative state.
	if snap.ListenerCount > 0 {
		s.hub.BroadcastToSession(hostID, &domain.StreamStateMessage{
			Type:     domain.MsgTypeStreamState,
			Snapshot: *snap,
		}, c.ID)
	}

	log.L().Info().Str(log.FieldHostID, hostID).Str(log.FieldTrackID, msg.Track.ID).Msg("session started")

	return c.SendMessage(&domain.HostStartedMessage{
		Type:   domain.MsgTypeHostStarted,
		HostID: hostID,
	})
}

func (s *streamService) HandleHostUpdate(ctx context.Context, c *hub.Client, msg domain.HostUpdateMessage) error {
	role, hostID := c.Session.Attachment()
	if role != hub.RoleHost {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "not hosting a session"))
	}

	snap, err := s.store.Get(ctx, hostID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", hostID, err)
	}
	if snap == nil {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeNotLive, "session is not live"))
	}

	// The relay stamps the sample time; host clocks are not trusted.
	update := domain.Update{
		Position:    msg.Position,
		IsPlaying:   msg.IsPlaying,
		Track:       msg.Track,
		TimestampMS: s.now().UnixMilli(),
	}
	snap.Apply(update)
	snap.ListenerCount = s.listenerCount(hostID)

	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save session %s: %w", hostID, err)
	}

	return s.hub.BroadcastToSession(hostID, &domain.StreamUpdateMessage{
		Type:   domain.MsgTypeStreamUpdate,
		Update: update,
	}, c.ID)
}

func (s *streamService) HandleHostEnd(ctx context.Context, c *hub.Client) error {
	role, hostID := c.Session.Attachment()
	if role != hub.RoleHost {
		return nil
	}
	return s.endSession(ctx, c, hostID, "the host ended the session")
}

func (s *streamService) HandleListenerJoin(ctx context.Context, c *hub.Client, msg domain.ListenerJoinMessage) error {
	if msg.HostID == "" {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "host id is required"))
	}

	snap, err := s.store.Get(ctx, msg.HostID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", msg.HostID, err)
	}
	if snap == nil {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeNotLive, "that session is not live"))
	}

	if s.cfg.MaxListeners > 0 && s.listenerCount(msg.HostID) >= s.cfg.MaxListeners {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeSessionFull, "the session is full"))
	}

	// Moving between sessions leaves the old one first.
	if role, prevHost := c.Session.Attachment(); role == hub.RoleListener && prevHost != msg.HostID {
		s.detachListener(ctx, c, prevHost)
	}

	c.Session.AttachListener(msg.HostID, msg.DisplayName)
	s.hub.JoinSession(c, msg.HostID)

	count := s.listenerCount(msg.HostID)
	snap.ListenerCount = count
	if err := s.store.Save(ctx, snap); err != nil {
		log.L().Warn().Err(err).Str(log.FieldHostID, msg.HostID).Msg("could not persist listener count")
	}

	if err := c.SendMessage(&domain.StreamStateMessage{
		Type:     domain.MsgTypeStreamState,
		Snapshot: *snap,
	}); err != nil {
		return err
	}

	s.broadcastListenerCount(msg.HostID, count)
	s.systemNotice(ctx, msg.HostID, fmt.Sprintf("%s joined the session", c.Session.Label()))
	return nil
}

func (s *streamService) HandleListenerLeave(ctx context.Context, c *hub.Client) error {
	role, hostID := c.Session.Attachment()
	if role != hub.RoleListener {
		return nil
	}
	s.detachListener(ctx, c, hostID)
	return nil
}

func (s *streamService) HandleChat(ctx context.Context, c *hub.Client, text string) error {
	_, hostID := c.Session.Attachment()
	if hostID == "" {
		return c.SendMessage(domain.NewStreamError(domain.ErrCodeBadRequest, "join a session before chatting"))
	}
	if text == "" {
		return nil
	}

	msg := &domain.ChatMessage{
		MessageID:   uuid.New().String(),
		HostID:      hostID,
		SenderID:    c.ID,
		SenderLabel: c.Session.Label(),
		Text:        text,
		SentAtMS:    s.now().UnixMilli(),
	}

	// Everyone gets the echo, the sender included; clients match
	// sender_id against their own connection id.
	if err := s.hub.BroadcastToSession(hostID, &domain.ChatMessageOut{
		Type:        domain.MsgTypeChatMessage,
		ChatMessage: *msg,
	}, ""); err != nil {
		return err
	}

	if err := s.recorder.Record(ctx, msg); err != nil {
		log.L().Warn().Err(err).Str(log.FieldHostID, hostID).Msg("chat audit record failed")
	}
	return nil
}

func (s *streamService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	role, hostID := c.Session.Attachment()
	switch role {
	case hub.RoleHost:
		return s.endSession(ctx, c, hostID, "the host disconnected")
	case hub.RoleListener:
		s.detachListener(ctx, c, hostID)
	}
	return nil
}

func (s *streamService) ActiveSessions(ctx context.Context) ([]*domain.Snapshot, error) {
	return s.store.ListActive(ctx)
}

func (s *streamService) Stop() error {
	if err := s.recorder.Close(); err != nil {
		log.L().Warn().Err(err).Msg("failed to close audit recorder")
	}
	return nil
}

// endSession tears the whole session down: store entry gone, every
// participant notified and detached.
func (s *streamService) endSession(ctx context.Context, c *hub.Client, hostID, reason string) error {
	s.mu.Lock()
	if s.hosts[hostID] == c {
		delete(s.hosts, hostID)
	}
	s.mu.Unlock()

	if err := s.store.Delete(ctx, hostID); err != nil {
		log.L().Warn().Err(err).Str(log.FieldHostID, hostID).Msg("could not delete session")
	}

	// The group is gone once EndSession returns, so the ended notice
	// goes straight to the departing members rather than through the
	// broadcast channel, which would no longer find them.
	ended := &domain.StreamEndedMessage{
		Type:    domain.MsgTypeStreamEnded,
		Message: reason,
	}
	for _, member := range s.hub.EndSession(hostID) {
		member.Session.Detach()
		if member.ID != c.ID {
			member.SendMessage(ended)
		}
	}

	log.L().Info().Str(log.FieldHostID, hostID).Msg("session ended")
	return nil
}

// detachListener drops one listener and refreshes the roster count for
// everyone left behind.
func (s *streamService) detachListener(ctx context.Context, c *hub.Client, hostID string) {
	label := c.Session.Label()
	c.Session.Detach()
	s.hub.LeaveSession(c, hostID)

	count := s.listenerCount(hostID)
	if snap, err := s.store.Get(ctx, hostID); err == nil && snap != nil {
		snap.ListenerCount = count
		if err := s.store.Save(ctx, snap); err != nil {
			log.L().Warn().Err(err).Str(log.FieldHostID, hostID).Msg("could not persist listener count")
		}
	}

	s.broadcastListenerCount(hostID, count)
	s.systemNotice(ctx, hostID, fmt.Sprintf("%s left the session", label))
}

// listenerCount is the session group size without the host connection.
func (s *streamService) listenerCount(hostID string) int {
	count := s.hub.SessionClientCount(hostID)

	s.mu.Lock()
	hosting := s.hosts[hostID] != nil
	s.mu.Unlock()

	if hosting && count > 0 {
		count--
	}
	return count
}

func (s *streamService) broadcastListenerCount(hostID string, count int) {
	s.hub.BroadcastToSession(hostID, &domain.StreamListenersMessage{
		Type:  domain.MsgTypeStreamListeners,
		Count: count,
	}, "")
}

// systemNotice posts a relay-generated chat line to the session.
func (s *streamService) systemNotice(ctx context.Context, hostID, text string) {
	msg := &domain.ChatMessage{
		MessageID: uuid.New().String(),
		HostID:    hostID,
		Text:      text,
		System:    true,
		SentAtMS:  s.now().UnixMilli(),
	}
	s.hub.BroadcastToSession(hostID, &domain.ChatMessageOut{
		Type:        domain.MsgTypeChatMessage,
		ChatMessage: *msg,
	}, "")
	if err := s.recorder.Record(ctx, msg); err != nil {
		log.L().Warn().Err(err).Str(log.FieldHostID, hostID).Msg("chat audit record failed")
	}
}
