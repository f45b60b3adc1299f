package audit

import (
	"context"

	"github.com/cb3tech/moshcast-live/internal/domain"
)

type nopRecorder struct{}

// NewNopRecorder is used when the audit pipeline is disabled.
func NewNopRecorder() Recorder {
	return nopRecorder{}
}

func (nopRecorder) Record(context.Context, *domain.ChatMessage) error { return nil }
func (nopRecorder) Close() error                                      { return nil }
