// Package publisher announces pipeline events to downstream consumers.
package publisher

import (
	"context"
	"time"
)

// Event types published by the pipeline.
const (
	EventScanCompleted   = "scan.completed"
	EventAlertsProcessed = "alerts.processed"
)

// Event is the envelope published after a committed scan or alert pass.
type Event struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// Publisher delivers events. Implementations return a broker-assigned id.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) (string, error) { return "", nil }
