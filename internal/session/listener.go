package session

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

// ListenerState is the listener client lifecycle.
type ListenerState int

const (
	ListenerConnecting ListenerState = iota
	ListenerAwaitingGesture
	ListenerSynced
	ListenerEnded
)

// ListenerConfig tunes reconciliation.
type ListenerConfig struct {
	// DriftThreshold is the divergence, in seconds, above which the
	// local play head is hard-seeked to the host's effective position.
	// Smaller drift is left alone to avoid audible stutter.
	DriftThreshold float64
	// Now is the clock source; defaults to time.Now.
	Now func() time.Time
}

func (c *ListenerConfig) withDefaults() {
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = 2.0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// appliedKey identifies one authoritative state sample, used to make
// reconciliation idempotent: applying the same snapshot twice is a
// no-op.
type appliedKey struct {
	timestampMS int64
	trackID     string
	position    float64
	isPlaying   bool
}

// Listener mirrors a host's session onto a locally owned playback
// adapter. It never mutates the authoritative pair; it only corrects
// its own playback toward it.
type Listener struct {
	ch     Channel
	player Playback
	cfg    ListenerConfig

	mu          sync.Mutex
	state       ListenerState
	hostID      string
	displayName string
	snap        *domain.Snapshot
	lastApplied *appliedKey
	lastTrack   *domain.Track
	count       int

	onState     func(ListenerState)
	onEnded     func(message string)
	onListeners func(count int)
	onError     func(code, message string)
}

// NewListener creates a listener around an exclusively owned adapter.
func NewListener(ch Channel, pb Playback, cfg ListenerConfig) *Listener {
	cfg.withDefaults()
	l := &Listener{
		ch:     ch,
		player: pb,
		cfg:    cfg,
		state:  ListenerConnecting,
	}

	ch.On(domain.MsgTypeStreamState, l.handleHostMessage(domain.MsgTypeStreamState))
	ch.On(domain.MsgTypeStreamUpdate, l.handleHostMessage(domain.MsgTypeStreamUpdate))
	ch.On(domain.MsgTypeStreamEnded, l.handleHostMessage(domain.MsgTypeStreamEnded))
	ch.On(domain.MsgTypeStreamListeners, l.handleListeners)
	ch.On(domain.MsgTypeStreamError, l.handleStreamError)
	return l
}

// OnStateChange registers a lifecycle callback.
func (l *Listener) OnStateChange(f func(ListenerState)) {
	l.mu.Lock()
	l.onState = f
	l.mu.Unlock()
}

// OnEnded registers the end-of-session callback.
func (l *Listener) OnEnded(f func(message string)) {
	l.mu.Lock()
	l.onEnded = f
	l.mu.Unlock()
}

// OnListenersChanged registers a roster-size callback.
func (l *Listener) OnListenersChanged(f func(count int)) {
	l.mu.Lock()
	l.onListeners = f
	l.mu.Unlock()
}

// OnError registers the callback for typed relay rejections such as
// NOT_LIVE and SESSION_FULL.
func (l *Listener) OnError(f func(code, message string)) {
	l.mu.Lock()
	l.onError = f
	l.mu.Unlock()
}

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Snapshot returns a copy of the last known authoritative state.
func (l *Listener) Snapshot() *domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.snap == nil {
		return nil
	}
	cp := *l.snap
	return &cp
}

// Listeners returns the relay-reported roster size.
func (l *Listener) Listeners() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Join requests the host's current session state from the relay. The
// reply arrives asynchronously as stream:state or stream:error.
func (l *Listener) Join(hostID, displayName string) error {
	if !l.ch.Connected() {
		return domain.ErrNotConnected
	}

	l.mu.Lock()
	l.hostID = hostID
	l.displayName = displayName
	l.state = ListenerConnecting
	l.snap = nil
	l.lastApplied = nil
	l.lastTrack = nil
	l.mu.Unlock()

	return l.ch.Emit(domain.MsgTypeListenerJoin, domain.ListenerJoinMessage{
		Type:        domain.MsgTypeListenerJoin,
		HostID:      hostID,
		DisplayName: displayName,
	})
}

// Leave detaches from the session. The relay drops this listener from
// the roster; local playback stops.
func (l *Listener) Leave() {
	l.mu.Lock()
	if l.state == ListenerEnded {
		l.mu.Unlock()
		return
	}
	l.state = ListenerEnded
	l.mu.Unlock()

	l.player.Pause()
	if err := l.ch.Emit(domain.MsgTypeListenerLeave, domain.ListenerLeaveMessage{
		Type: domain.MsgTypeListenerLeave,
	}); err != nil {
		log.L().Debug().Err(err).Msg("leave not delivered; relay will reap on disconnect")
	}
}

// StartListening is the manual fallback for gesture-gated playback: it
// records the user gesture and replays the deferred load/seek/play
// sequence from the most recently cached snapshot.
func (l *Listener) StartListening() error {
	l.player.Unlock()

	l.mu.Lock()
	if l.state == ListenerEnded {
		l.mu.Unlock()
		return domain.ErrSessionEnded
	}
	if l.snap == nil {
		l.mu.Unlock()
		return domain.ErrNotLive
	}
	snap := *l.snap
	// Force a fresh apply of the cached snapshot.
	l.lastApplied = nil
	l.mu.Unlock()

	l.apply(HostStarted{Snapshot: snap})
	return nil
}

// handleHostMessage adapts one wire event into its HostEvent variant.
func (l *Listener) handleHostMessage(msgType string) func(data []byte) {
	return func(data []byte) {
		ev, err := decodeHostEvent(msgType, data)
		if err != nil {
			log.L().Debug().Err(err).Msg("dropping malformed host event")
			return
		}
		l.apply(ev)
	}
}

// apply is the single reconciliation entry point for every host event.
func (l *Listener) apply(ev HostEvent) {
	switch e := ev.(type) {
	case HostStarted:
		l.reconcile(e.Snapshot)

	case HostUpdated:
		l.mu.Lock()
		if l.snap == nil {
			// An update before any snapshot: synthesize a base so a
			// late-arriving state push still converges.
			l.snap = &domain.Snapshot{HostID: l.hostID}
		}
		snap := *l.snap
		l.mu.Unlock()
		snap.Apply(e.Update)
		l.reconcile(snap)

	case HostEnded:
		l.mu.Lock()
		if l.state == ListenerEnded {
			l.mu.Unlock()
			return
		}
		l.state = ListenerEnded
		cbEnded := l.onEnded
		cbState := l.onState
		l.mu.Unlock()

		l.player.Pause()
		if cbEnded != nil {
			cbEnded(e.Message)
		}
		if cbState != nil {
			cbState(ListenerEnded)
		}
	}
}

// reconcile drives local playback toward the authoritative snapshot.
// Applying the same snapshot twice produces no additional seeks or
// reloads.
func (l *Listener) reconcile(snap domain.Snapshot) {
	now := l.cfg.Now()

	l.mu.Lock()
	if l.state == ListenerEnded {
		l.mu.Unlock()
		return
	}

	key := appliedKey{
		timestampMS: snap.TimestampMS,
		position:    snap.Position,
		isPlaying:   snap.IsPlaying,
	}
	if snap.Track != nil {
		key.trackID = snap.Track.ID
	}
	if l.lastApplied != nil && *l.lastApplied == key {
		// Roster count may still have moved.
		l.snap = &snap
		l.mu.Unlock()
		return
	}
	// A new track id means a new media resource, no matter what URL the
	// adapter currently holds.
	trackChanged := snap.Track != nil && snap.Track.MediaURL != "" &&
		!domain.SameTrack(l.lastTrack, snap.Track)
	l.mu.Unlock()

	effective := snap.EffectivePosition(now)

	if trackChanged {
		// Hard resync point: new resource, position set directly.
		l.player.Load(snap.Track.MediaURL, snap.Track.Duration)
		l.player.Seek(effective)
	} else if snap.Track != nil {
		drift := math.Abs(l.player.Position() - effective)
		if drift >= l.cfg.DriftThreshold {
			log.L().Debug().
				Float64(log.FieldDrift, drift).
				Float64(log.FieldPosition, effective).
				Msg("correcting drift")
			l.player.Seek(effective)
		}
	}

	awaiting := false
	if snap.IsPlaying && !l.player.Playing() {
		if err := l.player.Play(); err != nil {
			if errors.Is(err, domain.ErrAutoplayBlocked) {
				awaiting = true
			} else {
				log.L().Warn().Err(err).Msg("playback start failed")
			}
		}
	} else if !snap.IsPlaying && l.player.Playing() {
		l.player.Pause()
	}

	l.mu.Lock()
	l.snap = &snap
	l.lastApplied = &key
	if trackChanged {
		l.lastTrack = snap.Track
	}
	l.count = snap.ListenerCount

	var newState ListenerState
	if awaiting {
		newState = ListenerAwaitingGesture
	} else {
		newState = ListenerSynced
	}
	changed := newState != l.state
	l.state = newState
	cb := l.onState
	l.mu.Unlock()

	if changed && cb != nil {
		cb(newState)
	}
}

func (l *Listener) handleListeners(data []byte) {
	var msg domain.StreamListenersMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	l.mu.Lock()
	l.count = msg.Count
	cb := l.onListeners
	l.mu.Unlock()
	if cb != nil {
		cb(msg.Count)
	}
}

func (l *Listener) handleStreamError(data []byte) {
	var msg domain.StreamErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	l.mu.Lock()
	cb := l.onError
	l.mu.Unlock()
	if cb != nil {
		cb(msg.Code, msg.Message)
	}
}
