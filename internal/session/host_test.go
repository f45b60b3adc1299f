package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

func newTestHost(t *testing.T) (*Host, *fakeChannel, *fakePlayback, *testClock) {
	t.Helper()
	ch := newFakeChannel()
	pb := newFakePlayback()
	clock := newTestClock()
	h := NewHost(ch, pb, "host-1", HostConfig{
		PublishThrottle: 500 * time.Millisecond,
		Now:             clock.Now,
	})
	return h, ch, pb, clock
}

func TestHostStartRequiresConnection(t *testing.T) {
	h, ch, pb, _ := newTestHost(t)
	ch.setConnected(false)

	err := h.Start(trackA())
	require.ErrorIs(t, err, domain.ErrNotConnected)

	assert.Equal(t, HostIdle, h.State())
	assert.Empty(t, ch.emitted, "nothing may be queued while offline")
	assert.Empty(t, pb.loads, "playback must not start while offline")
}

func TestHostStartRequiresTrack(t *testing.T) {
	h, _, _, _ := newTestHost(t)
	require.ErrorIs(t, h.Start(nil), domain.ErrNoTrack)
}

func TestHostStartPublishesAndPlays(t *testing.T) {
	h, ch, pb, _ := newTestHost(t)
	track := trackA()

	require.NoError(t, h.Start(track))

	assert.Equal(t, HostLive, h.State())
	assert.True(t, pb.Playing())
	assert.Equal(t, []string{track.MediaURL}, pb.loads)

	starts := ch.emittedByEvent(domain.MsgTypeHostStart)
	require.Len(t, starts, 1)
	msg := starts[0].payload.(domain.HostStartMessage)
	assert.Equal(t, "host-1", msg.HostID)
	assert.Equal(t, track.ID, msg.Track.ID)
}

func TestHostPositionTickThrottle(t *testing.T) {
	h, ch, _, clock := newTestHost(t)
	require.NoError(t, h.Start(trackA()))

	// A burst of ticks inside the throttle window collapses to nothing.
	for i := 0; i < 10; i++ {
		clock.Advance(20 * time.Millisecond)
		h.OnPositionTick(float64(i))
	}
	assert.Empty(t, ch.emittedByEvent(domain.MsgTypeHostUpdate))

	clock.Advance(600 * time.Millisecond)
	h.OnPositionTick(11)
	require.Len(t, ch.emittedByEvent(domain.MsgTypeHostUpdate), 1)

	for i := 0; i < 10; i++ {
		clock.Advance(20 * time.Millisecond)
		h.OnPositionTick(float64(12 + i))
	}
	assert.Len(t, ch.emittedByEvent(domain.MsgTypeHostUpdate), 1)
}

func TestHostPlayPauseBypassesThrottle(t *testing.T) {
	h, ch, pb, _ := newTestHost(t)
	require.NoError(t, h.Start(trackA()))
	pb.setPosition(12.5)

	// Still inside the throttle window opened by Start.
	h.OnPlayStateChange(false)

	updates := ch.emittedByEvent(domain.MsgTypeHostUpdate)
	require.Len(t, updates, 1)
	msg := updates[0].payload.(domain.HostUpdateMessage)
	require.NotNil(t, msg.IsPlaying)
	assert.False(t, *msg.IsPlaying)
	require.NotNil(t, msg.Position)
	assert.InDelta(t, 12.5, *msg.Position, 0.001)
}

func TestHostChangeTrackPublishesImmediately(t *testing.T) {
	h, ch, pb, _ := newTestHost(t)
	require.NoError(t, h.Start(trackA()))

	next := trackB()
	require.NoError(t, h.ChangeTrack(next))

	assert.Equal(t, []string{trackA().MediaURL, next.MediaURL}, pb.loads)
	assert.Equal(t, next.ID, h.CurrentTrack().ID)

	updates := ch.emittedByEvent(domain.MsgTypeHostUpdate)
	require.Len(t, updates, 1)
	msg := updates[0].payload.(domain.HostUpdateMessage)
	require.NotNil(t, msg.Track)
	assert.Equal(t, next.ID, msg.Track.ID)
	require.NotNil(t, msg.Position)
	assert.Zero(t, *msg.Position)
	require.NotNil(t, msg.IsPlaying)
	assert.True(t, *msg.IsPlaying)
}

func TestHostChangeTrackWhileIdle(t *testing.T) {
	h, _, _, _ := newTestHost(t)
	require.ErrorIs(t, h.ChangeTrack(trackA()), domain.ErrSessionEnded)
}

func TestHostEndIsIdempotent(t *testing.T) {
	h, ch, pb, _ := newTestHost(t)
	require.NoError(t, h.Start(trackA()))

	h.End()
	h.End()

	assert.Equal(t, HostIdle, h.State())
	assert.Nil(t, h.CurrentTrack())
	assert.False(t, pb.Playing())
	assert.Len(t, ch.emittedByEvent(domain.MsgTypeHostEnd), 1)
}

func TestHostRestartAfterEnd(t *testing.T) {
	h, ch, _, _ := newTestHost(t)
	require.NoError(t, h.Start(trackA()))
	h.End()

	require.NoError(t, h.Start(trackB()))

	assert.Equal(t, HostLive, h.State())
	assert.Equal(t, trackB().ID, h.CurrentTrack().ID)
	assert.Len(t, ch.emittedByEvent(domain.MsgTypeHostStart), 2)
}

func TestHostIgnoresTicksWhileIdle(t *testing.T) {
	h, ch, _, clock := newTestHost(t)
	clock.Advance(time.Second)
	h.OnPositionTick(10)
	h.OnPlayStateChange(true)
	assert.Empty(t, ch.emitted)
}

func TestHostTrackEndedStopsPlaybackState(t *testing.T) {
	h, ch, pb, _ := newTestHost(t)
	require.NoError(t, h.Start(trackA()))
	pb.setPosition(trackA().Duration)

	h.OnTrackEnded()

	assert.Equal(t, HostLive, h.State(), "session stays live after the track runs out")
	updates := ch.emittedByEvent(domain.MsgTypeHostUpdate)
	require.Len(t, updates, 1)
	msg := updates[0].payload.(domain.HostUpdateMessage)
	require.NotNil(t, msg.IsPlaying)
	assert.False(t, *msg.IsPlaying)
}

func TestHostListenerRoster(t *testing.T) {
	h, ch, _, _ := newTestHost(t)

	var seen []int
	h.OnListenersChanged(func(count int) { seen = append(seen, count) })

	ch.push(t, domain.MsgTypeStreamListeners, domain.StreamListenersMessage{
		Type:  domain.MsgTypeStreamListeners,
		Count: 3,
	})
	ch.push(t, domain.MsgTypeStreamListeners, domain.StreamListenersMessage{
		Type:  domain.MsgTypeStreamListeners,
		Count: 2,
	})

	assert.Equal(t, 2, h.Listeners())
	assert.Equal(t, []int{3, 2}, seen)
}
