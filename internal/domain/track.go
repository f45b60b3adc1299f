package domain

// Track is the library metadata needed to mirror playback of one song.
// MediaURL points at the media file served by the library backend;
// listeners load it directly.
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Artist     string  `json:"artist"`
	MediaURL   string  `json:"media_url"`
	ArtworkURL string  `json:"artwork_url,omitempty"`
	Duration   float64 `json:"duration_seconds"`
}

// SameTrack reports whether two possibly-nil tracks refer to the same song.
func SameTrack(a, b *Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
