// Package session implements the two sides of a live listening
// session: the host controller that owns authoritative playback state
// and broadcasts it, and the listener client that reconciles its own
// playback against the host's snapshots.
package session

import "github.com/cb3tech/moshcast-live/internal/transport"

// Channel is the slice of the transport layer the session logic needs.
// Satisfied by *transport.Channel; tests substitute a fake.
type Channel interface {
	On(event string, h transport.Handler)
	Off(event string)
	Emit(event string, payload interface{}) error
	Connected() bool
	ConnID() string
}

// Playback is the local playback adapter surface. Satisfied by
// *player.Player. The underlying audio resource is exclusively owned
// by whichever controller holds the adapter.
type Playback interface {
	Load(mediaURL string, duration float64)
	Play() error
	Pause()
	Seek(seconds float64)
	Unlock()
	Position() float64
	Duration() float64
	Playing() bool
	MediaURL() string
}
