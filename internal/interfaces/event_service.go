package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventRunStarted carries a RunEvent
	EventRunStarted EventType = "run_started"
	// EventRunCompleted carries a RunEvent
	EventRunCompleted EventType = "run_completed"
	// EventAccountScraped carries a models.UsageSnapshot
	EventAccountScraped EventType = "account_scraped"
	// EventSnapshotUpdated carries the freshly written models.AggregateSnapshot
	EventSnapshotUpdated EventType = "snapshot_updated"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// RunEvent describes an orchestrator run boundary
type RunEvent struct {
	RunID    string `json:"runId"`
	Accounts int    `json:"accounts"`
	OK       int    `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub bus
type EventService interface {
	// Subscribe registers handler and returns an id for Unsubscribe
	Subscribe(eventType EventType, handler EventHandler) (string, error)

	Unsubscribe(eventType EventType, id string) error

	// Publish delivers to every subscriber asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync delivers and waits for all handlers to return
	PublishSync(ctx context.Context, event Event) error

	Close() error
}
