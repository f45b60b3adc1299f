package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/transport"
)

// fakeChannel records emitted messages and lets tests inject relay
// messages into registered handlers.
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	connID    string
	handlers  map[string]transport.Handler
	emitted   []emittedMsg
}

type emittedMsg struct {
	event   string
	payload interface{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		connected: true,
		connID:    "conn-self",
		handlers:  make(map[string]transport.Handler),
	}
}

func (f *fakeChannel) On(event string, h transport.Handler) {
	f.mu.Lock()
	f.handlers[event] = h
	f.mu.Unlock()
}

func (f *fakeChannel) Off(event string) {
	f.mu.Lock()
	delete(f.handlers, event)
	f.mu.Unlock()
}

func (f *fakeChannel) Emit(event string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return domain.ErrNotConnected
	}
	f.emitted = append(f.emitted, emittedMsg{event: event, payload: payload})
	return nil
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) ConnID() string { return f.connID }

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

// push delivers a relay message to the registered handler.
func (f *fakeChannel) push(t *testing.T, event string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	require.NotNil(t, h, "no handler for %s", event)
	h(data)
}

func (f *fakeChannel) emittedByEvent(event string) []emittedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedMsg
	for _, m := range f.emitted {
		if m.event == event {
			out = append(out, m)
		}
	}
	return out
}

// fakePlayback records adapter calls for reconciliation assertions.
type fakePlayback struct {
	mu sync.Mutex

	loadedURL string
	duration  float64
	position  float64
	playing   bool
	unlocked  bool

	loads  []string
	seeks  []float64
	plays  int
	pauses int
}

func newFakePlayback() *fakePlayback {
	return &fakePlayback{unlocked: true}
}

func (p *fakePlayback) Load(url string, duration float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadedURL = url
	p.duration = duration
	p.position = 0
	p.playing = false
	p.loads = append(p.loads, url)
}

func (p *fakePlayback) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadedURL == "" {
		return domain.ErrNoTrack
	}
	if !p.unlocked {
		return domain.ErrAutoplayBlocked
	}
	p.playing = true
	p.plays++
	return nil
}

func (p *fakePlayback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.playing = false
		p.pauses++
	}
}

func (p *fakePlayback) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = seconds
	p.seeks = append(p.seeks, seconds)
}

func (p *fakePlayback) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocked = true
}

func (p *fakePlayback) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayback) Duration() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

func (p *fakePlayback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayback) MediaURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadedURL
}

func (p *fakePlayback) setPosition(seconds float64) {
	p.mu.Lock()
	p.position = seconds
	p.mu.Unlock()
}

// testClock is a manually advanced clock shared by controller and
// assertions.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func trackA() *domain.Track {
	return &domain.Track{
		ID:       "track-a",
		Title:    "Opening Number",
		Artist:   "The Regulars",
		MediaURL: "https://media.example.com/a.mp3",
		Duration: 240,
	}
}

func trackB() *domain.Track {
	return &domain.Track{
		ID:       "track-b",
		Title:    "Second Set",
		Artist:   "The Regulars",
		MediaURL: "https://media.example.com/b.mp3",
		Duration: 200,
	}
}
