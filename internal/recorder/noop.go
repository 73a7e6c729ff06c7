package recorder

import (
	"context"

	"ArenaPilot/internal/events"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) Publish(_ context.Context, _ events.Event) error { return nil }
func (n *NoopRecorder) RecentResults(_ context.Context, _ int) ([]ResultRow, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
