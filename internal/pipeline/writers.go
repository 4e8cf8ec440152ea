package pipeline

import (
	"context"

	"memtrace/pkg/models"
)

// Source yields encoded deallocation payloads. Pop returns nil, nil when no
// payload arrived within its poll window.
type Source interface {
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// EventWriter writes decoded deallocation events.
type EventWriter interface {
	WriteEvents(ctx context.Context, events []*models.DeallocationEvent) error
	Close() error
}

// AlertWriter writes alert outputs.
type AlertWriter interface {
	WriteAlerts(ctx context.Context, alerts []*models.Alert) error
	Close() error
}

// StateWriter updates a derived per-allocator state index.
type StateWriter interface {
	WriteEvents(ctx context.Context, events []*models.DeallocationEvent) error
	Close() error
}

// RawWriter writes raw input payloads for replay.
type RawWriter interface {
	WriteRawMessages(messages [][]byte) error
	Close() error
}

// Sinks groups the pipeline outputs. Only Events is required.
type Sinks struct {
	Events EventWriter
	Alerts AlertWriter
	State  StateWriter
	Raw    RawWriter
}
