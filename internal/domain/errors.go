package domain

import "errors"

var (
	// ErrNotConnected is returned when an operation requires a live
	// transport channel and the channel is down. Nothing is queued.
	ErrNotConnected = errors.New("transport channel is not connected")

	// ErrNoTrack is returned when a session is started without a track.
	ErrNoTrack = errors.New("no track selected")

	// ErrNotLive is returned when joining a host that has no active session.
	ErrNotLive = errors.New("host is not live")

	// ErrSessionFull is returned when the listener cap has been reached.
	ErrSessionFull = errors.New("session is full")

	// ErrAutoplayBlocked is returned by the playback adapter when play is
	// attempted before a user gesture has unlocked audio. Expected
	// alternate path, never retried automatically.
	ErrAutoplayBlocked = errors.New("playback blocked pending user gesture")

	// ErrSessionEnded is returned for operations against an ended session.
	ErrSessionEnded = errors.New("session has ended")
)
