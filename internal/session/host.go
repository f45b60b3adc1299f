package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

// HostState is the host controller lifecycle.
type HostState int

const (
	HostIdle HostState = iota
	HostLive
)

// HostConfig tunes the host's publishing behavior.
type HostConfig struct {
	// PublishThrottle is the minimum spacing between position-only
	// updates. Play/pause flips and track changes bypass it.
	PublishThrottle time.Duration
	// SnapshotEvery is the period of full-state republishes while
	// live, so long-lived listeners can self-heal. Zero disables.
	SnapshotEvery time.Duration
	// Now is the clock source; defaults to time.Now.
	Now func() time.Time
}

func (c *HostConfig) withDefaults() {
	if c.PublishThrottle <= 0 {
		c.PublishThrottle = 500 * time.Millisecond
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Host owns the authoritative state of one live session. It reads from
// its local playback adapter and publishes snapshots and throttled
// updates over the channel. All session state lives in this one
// structure; every method reads it synchronously under the lock.
type Host struct {
	ch     Channel
	player Playback
	cfg    HostConfig
	hostID string

	mu            sync.Mutex
	state         HostState
	current       *domain.Track
	lastPublish   time.Time
	listenerCount int
	stopSnapshots chan struct{}

	onListeners func(count int)
}

// NewHost creates an idle host controller for the given identity. The
// playback adapter must be exclusively owned by this host.
func NewHost(ch Channel, pb Playback, hostID string, cfg HostConfig) *Host {
	cfg.withDefaults()
	h := &Host{
		ch:     ch,
		player: pb,
		cfg:    cfg,
		hostID: hostID,
	}

	ch.On(domain.MsgTypeStreamListeners, h.handleListeners)
	return h
}

// OnListenersChanged registers a callback for roster size changes. The
// count is maintained by the relay, never computed locally.
func (h *Host) OnListenersChanged(f func(count int)) {
	h.mu.Lock()
	h.onListeners = f
	h.mu.Unlock()
}

// State returns the current lifecycle state.
func (h *Host) State() HostState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Listeners returns the relay-reported roster size.
func (h *Host) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listenerCount
}

// CurrentTrack returns the track being broadcast, nil when idle.
func (h *Host) CurrentTrack() *domain.Track {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Start transitions Idle to Live: loads and plays the track locally,
// then publishes an immediate full snapshot and begins periodic
// publishing. It fails fast with ErrNotConnected when the channel is
// down, with no side effects; nothing is queued offline. Starting
// while already live begins a fresh cycle with the new track.
func (h *Host) Start(track *domain.Track) error {
	if track == nil {
		return domain.ErrNoTrack
	}
	if !h.ch.Connected() {
		return domain.ErrNotConnected
	}

	h.mu.Lock()
	if h.state == HostLive {
		h.stopSnapshotLoopLocked()
	}
	h.state = HostLive
	h.current = track
	h.listenerCount = 0
	h.lastPublish = time.Time{}
	h.mu.Unlock()

	h.player.Load(track.MediaURL, track.Duration)
	if err := h.player.Play(); err != nil {
		h.mu.Lock()
		h.state = HostIdle
		h.current = nil
		h.mu.Unlock()
		return err
	}

	if err := h.ch.Emit(domain.MsgTypeHostStart, domain.HostStartMessage{
		Type:   domain.MsgTypeHostStart,
		HostID: h.hostID,
		Track:  track,
	}); err != nil {
		h.player.Pause()
		h.mu.Lock()
		h.state = HostIdle
		h.current = nil
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.lastPublish = h.cfg.Now()
	h.startSnapshotLoopLocked()
	h.mu.Unlock()

	log.L().Info().Str(log.FieldHostID, h.hostID).Str(log.FieldTrackID, track.ID).Msg("session started")
	return nil
}

// ChangeTrack switches the broadcast to a new track. A track change is
// a hard resync point for listeners, so a full snapshot is published
// immediately, untouched by the throttle.
func (h *Host) ChangeTrack(track *domain.Track) error {
	if track == nil {
		return domain.ErrNoTrack
	}
	h.mu.Lock()
	if h.state != HostLive {
		h.mu.Unlock()
		return domain.ErrSessionEnded
	}
	h.current = track
	h.mu.Unlock()

	h.player.Load(track.MediaURL, track.Duration)
	if err := h.player.Play(); err != nil {
		return err
	}

	pos := 0.0
	playing := true
	h.publish(domain.HostUpdateMessage{
		Type:      domain.MsgTypeHostUpdate,
		Track:     track,
		Position:  &pos,
		IsPlaying: &playing,
	})
	return nil
}

// End transitions Live to Idle, publishing a terminal notification and
// cancelling the periodic publisher. Idempotent.
func (h *Host) End() {
	h.mu.Lock()
	if h.state != HostLive {
		h.mu.Unlock()
		return
	}
	h.state = HostIdle
	h.current = nil
	h.listenerCount = 0
	h.stopSnapshotLoopLocked()
	h.mu.Unlock()

	h.player.Pause()

	if err := h.ch.Emit(domain.MsgTypeHostEnd, domain.HostEndMessage{
		Type:   domain.MsgTypeHostEnd,
		HostID: h.hostID,
	}); err != nil {
		// The relay also ends the session on host disconnect.
		log.L().Warn().Err(err).Str(log.FieldHostID, h.hostID).Msg("could not publish session end")
	}

	log.L().Info().Str(log.FieldHostID, h.hostID).Msg("session ended")
}

// OnPositionTick handles a positionTick from the local adapter.
// Position-only updates are rate limited by the publish throttle.
func (h *Host) OnPositionTick(position float64) {
	h.mu.Lock()
	if h.state != HostLive {
		h.mu.Unlock()
		return
	}
	now := h.cfg.Now()
	if now.Sub(h.lastPublish) < h.cfg.PublishThrottle {
		h.mu.Unlock()
		return
	}
	h.lastPublish = now
	h.mu.Unlock()

	playing := h.player.Playing()
	h.emitUpdate(domain.HostUpdateMessage{
		Type:      domain.MsgTypeHostUpdate,
		Position:  &position,
		IsPlaying: &playing,
	})
}

// OnPlayStateChange handles a local play/pause toggle. State
// transitions are never suppressed by the throttle.
func (h *Host) OnPlayStateChange(playing bool) {
	h.mu.Lock()
	if h.state != HostLive {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	pos := h.player.Position()
	h.publish(domain.HostUpdateMessage{
		Type:      domain.MsgTypeHostUpdate,
		Position:  &pos,
		IsPlaying: &playing,
	})
}

// OnTrackEnded handles the local adapter reaching the end of the
// track. The session stays live with playback stopped at the end.
func (h *Host) OnTrackEnded() {
	h.OnPlayStateChange(false)
}

// publish sends an update immediately and resets the throttle window.
func (h *Host) publish(msg domain.HostUpdateMessage) {
	h.mu.Lock()
	h.lastPublish = h.cfg.Now()
	h.mu.Unlock()
	h.emitUpdate(msg)
}

func (h *Host) emitUpdate(msg domain.HostUpdateMessage) {
	if err := h.ch.Emit(domain.MsgTypeHostUpdate, msg); err != nil {
		log.L().Debug().Err(err).Str(log.FieldHostID, h.hostID).Msg("dropped host update")
	}
}

func (h *Host) handleListeners(data []byte) {
	var msg domain.StreamListenersMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	h.mu.Lock()
	h.listenerCount = msg.Count
	cb := h.onListeners
	h.mu.Unlock()
	if cb != nil {
		cb(msg.Count)
	}
}

// startSnapshotLoopLocked begins periodic full-state republishing.
func (h *Host) startSnapshotLoopLocked() {
	if h.cfg.SnapshotEvery <= 0 || h.stopSnapshots != nil {
		return
	}
	stop := make(chan struct{})
	h.stopSnapshots = stop

	go func() {
		ticker := time.NewTicker(h.cfg.SnapshotEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				h.publishSnapshot()
			}
		}
	}()
}

func (h *Host) stopSnapshotLoopLocked() {
	if h.stopSnapshots != nil {
		close(h.stopSnapshots)
		h.stopSnapshots = nil
	}
}

func (h *Host) publishSnapshot() {
	h.mu.Lock()
	track := h.current
	live := h.state == HostLive
	h.mu.Unlock()
	if !live {
		return
	}

	pos := h.player.Position()
	playing := h.player.Playing()
	h.publish(domain.HostUpdateMessage{
		Type:      domain.MsgTypeHostUpdate,
		Track:     track,
		Position:  &pos,
		IsPlaying: &playing,
	})
}
