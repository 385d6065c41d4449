package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

// AllEventTypes lists every event the bus carries
var AllEventTypes = []interfaces.EventType{
	interfaces.EventRunStarted,
	interfaces.EventRunCompleted,
	interfaces.EventAccountScraped,
	interfaces.EventSnapshotUpdated,
}

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case interfaces.RunEvent:
			logEvent = logEvent.
				Str("run_id", payload.RunID).
				Int("accounts", payload.Accounts).
				Int("ok", payload.OK)
			if payload.Error != "" {
				logEvent = logEvent.Str("error", payload.Error)
			}
		case models.UsageSnapshot:
			logEvent = logEvent.
				Int("account", payload.AccountIndex).
				Str("status", string(payload.Status))
		case models.AggregateSnapshot:
			logEvent = logEvent.Int("accounts", len(payload.Accounts))
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	for _, eventType := range AllEventTypes {
		if _, err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(AllEventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
