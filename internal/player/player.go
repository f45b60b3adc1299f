// Package player provides the local playback adapter: a clock-driven
// model of a single audio resource with the same surface as the page
// audio element it stands in for. Each session role owns exactly one
// adapter instance; there is no package-level shared state.
package player

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/pkg/log"
)

// Handlers receives playback events. All callbacks are optional and
// are invoked without the adapter lock held; they may call back into
// the adapter.
type Handlers struct {
	OnTick  func(position float64)
	OnPlay  func()
	OnPause func()
	OnEnded func()
	OnError func(err error)
}

// Options configures a Player.
type Options struct {
	// TickInterval bounds the positionTick rate. Zero means one second.
	TickInterval time.Duration
	// RequireGesture models the browser autoplay policy: Play fails
	// with ErrAutoplayBlocked until Unlock is called.
	RequireGesture bool
	// Now is the clock source; defaults to time.Now.
	Now func() time.Time
}

// Player simulates playback of one loaded media URL. Position advances
// with wall-clock time while playing; ticks are emitted only while
// playing and stop as soon as playback does.
type Player struct {
	mu sync.Mutex

	handlers Handlers

	nowFn        func() time.Time
	tickInterval time.Duration

	requireGesture bool
	unlocked       bool

	mediaURL string
	duration float64
	volume   float64

	basePos    float64
	resumedAt  time.Time
	playing    bool
	endedFired bool

	stopTick chan struct{}
	closed   bool
}

// New creates an idle adapter with nothing loaded.
func New(opts Options, handlers Handlers) *Player {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Player{
		handlers:       handlers,
		nowFn:          opts.Now,
		tickInterval:   opts.TickInterval,
		requireGesture: opts.RequireGesture,
		unlocked:       !opts.RequireGesture,
		volume:         1.0,
	}
}

// Load replaces the current media resource. Any previous resource and
// its tick timer are fully released first. An unusable URL is signaled
// through the error handler and leaves the adapter unloaded; it is
// never returned to the caller's control flow.
func (p *Player) Load(mediaURL string, duration float64) {
	p.mu.Lock()
	p.stopTickingLocked()
	p.mediaURL = ""
	p.duration = 0
	p.basePos = 0
	p.playing = false
	p.endedFired = false

	u, err := url.ParseRequestURI(mediaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		p.mu.Unlock()
		p.emitError(fmt.Errorf("unsupported media url %q", mediaURL))
		return
	}
	if duration < 0 {
		duration = 0
	}

	p.mediaURL = mediaURL
	p.duration = duration
	p.mu.Unlock()
}

// Unlock records a user gesture, allowing playback to start.
func (p *Player) Unlock() {
	p.mu.Lock()
	p.unlocked = true
	p.mu.Unlock()
}

// Unlocked reports whether a user gesture has been granted.
func (p *Player) Unlocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unlocked
}

// Play starts or resumes playback. It fails with ErrAutoplayBlocked
// before a user gesture and with ErrNoTrack when nothing is loaded.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.mediaURL == "" {
		p.mu.Unlock()
		return domain.ErrNoTrack
	}
	if !p.unlocked {
		p.mu.Unlock()
		return domain.ErrAutoplayBlocked
	}
	if p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = true
	p.resumedAt = p.nowFn()
	p.startTickingLocked()
	onPlay := p.handlers.OnPlay
	p.mu.Unlock()

	if onPlay != nil {
		onPlay()
	}
	return nil
}

// Pause halts playback and clears the tick timer.
func (p *Player) Pause() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.basePos = p.positionLocked()
	p.playing = false
	p.stopTickingLocked()
	onPause := p.handlers.OnPause
	p.mu.Unlock()

	if onPause != nil {
		onPause()
	}
}

// Seek moves the play head, clamped to the loaded duration.
func (p *Player) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mediaURL == "" {
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	if p.duration > 0 && seconds > p.duration {
		seconds = p.duration
	}
	p.basePos = seconds
	p.resumedAt = p.nowFn()
}

// Position returns the current play head in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// Duration returns the loaded track length in seconds, 0 when unloaded.
func (p *Player) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Playing reports whether playback is advancing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// MediaURL returns the currently loaded URL, empty when unloaded.
func (p *Player) MediaURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mediaURL
}

// SetVolume sets playback volume, clamped to [0, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	p.volume = v
}

// Volume returns the current volume.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close releases the adapter and its timer. The adapter is unusable
// afterwards.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickingLocked()
	p.playing = false
	p.mediaURL = ""
	p.closed = true
}

func (p *Player) positionLocked() float64 {
	pos := p.basePos
	if p.playing {
		pos += p.nowFn().Sub(p.resumedAt).Seconds()
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *Player) startTickingLocked() {
	if p.stopTick != nil || p.closed {
		return
	}
	stop := make(chan struct{})
	p.stopTick = stop
	go p.tickLoop(stop)
}

func (p *Player) stopTickingLocked() {
	if p.stopTick != nil {
		close(p.stopTick)
		p.stopTick = nil
	}
}

func (p *Player) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !p.Tick() {
				return
			}
		}
	}
}

// Tick emits one positionTick, firing ended when the play head has
// reached the loaded duration. It returns false once ticking should
// stop. Exposed so tests can drive the adapter with a fake clock.
func (p *Player) Tick() bool {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return false
	}
	pos := p.positionLocked()
	atEnd := p.duration > 0 && pos >= p.duration

	var onEnded func()
	if atEnd {
		p.basePos = p.duration
		p.playing = false
		p.stopTickingLocked()
		if !p.endedFired {
			p.endedFired = true
			onEnded = p.handlers.OnEnded
		}
	}
	onTick := p.handlers.OnTick
	p.mu.Unlock()

	if onTick != nil {
		onTick(pos)
	}
	if onEnded != nil {
		onEnded()
	}
	return !atEnd
}

func (p *Player) emitError(err error) {
	log.L().Warn().Err(err).Msg("playback error")
	if p.handlers.OnError != nil {
		p.handlers.OnError(err)
	}
}
