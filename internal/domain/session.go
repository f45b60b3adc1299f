package domain

import "time"

// Snapshot is a full authoritative state push for one host's session.
// Position and IsPlaying were sampled together at TimestampMS (unix
// milliseconds, stamped by the relay); listeners extrapolate from that
// pair rather than trusting Position directly.
type Snapshot struct {
	HostID        string  `json:"host_id"`
	Track         *Track  `json:"track"`
	Position      float64 `json:"position"`
	IsPlaying     bool    `json:"is_playing"`
	ListenerCount int     `json:"listener_count"`
	TimestampMS   int64   `json:"timestamp_ms"`
}

// EffectivePosition returns the host position extrapolated to now.
// While paused the sampled position is authoritative as-is. The result
// is clamped to the track duration when one is known.
func (s *Snapshot) EffectivePosition(now time.Time) float64 {
	pos := s.Position
	if s.IsPlaying {
		elapsed := float64(now.UnixMilli()-s.TimestampMS) / 1000.0
		if elapsed > 0 {
			pos += elapsed
		}
	}
	if pos < 0 {
		pos = 0
	}
	if s.Track != nil && s.Track.Duration > 0 && pos > s.Track.Duration {
		pos = s.Track.Duration
	}
	return pos
}

// Update is a partial state push. Nil fields are unchanged.
type Update struct {
	Position    *float64 `json:"position,omitempty"`
	IsPlaying   *bool    `json:"is_playing,omitempty"`
	Track       *Track   `json:"track,omitempty"`
	TimestampMS int64    `json:"timestamp_ms"`
}

// Apply merges an update into the snapshot. The snapshot timestamp
// always advances to the update's sample time.
func (s *Snapshot) Apply(u Update) {
	if u.Track != nil {
		s.Track = u.Track
	}
	if u.Position != nil {
		s.Position = *u.Position
	}
	if u.IsPlaying != nil {
		s.IsPlaying = *u.IsPlaying
	}
	s.TimestampMS = u.TimestampMS
}

// ChatMessage is one chat line scoped to a host's session. Immutable
// once created; ordering is receipt order per client.
type ChatMessage struct {
	MessageID   string `json:"message_id"`
	HostID      string `json:"host_id"`
	SenderID    string `json:"sender_id"`
	SenderLabel string `json:"sender_label"`
	Text        string `json:"text"`
	System      bool   `json:"system,omitempty"`
	SentAtMS    int64  `json:"sent_at_ms"`
}
