package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

func TestNewLoggerSubscriber(t *testing.T) {
	subscriber := NewLoggerSubscriber(arbor.NewLogger())
	ctx := context.Background()

	events := []interfaces.Event{
		{Type: interfaces.EventRunStarted, Payload: interfaces.RunEvent{RunID: "run-1", Accounts: 4}},
		{Type: interfaces.EventRunCompleted, Payload: interfaces.RunEvent{RunID: "run-1", Accounts: 4, Error: "disk full"}},
		{Type: interfaces.EventAccountScraped, Payload: models.UsageSnapshot{AccountIndex: 2, Status: models.StatusNoSession}},
		{Type: interfaces.EventSnapshotUpdated, Payload: models.AggregateSnapshot{}},
		{Type: interfaces.EventSnapshotUpdated, Payload: nil},
	}

	for _, event := range events {
		assert.NoError(t, subscriber(ctx, event))
	}
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()
	svc := NewService(logger)
	defer svc.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(svc, logger))
	for _, eventType := range AllEventTypes {
		assert.Len(t, svc.handlers(eventType), 1, string(eventType))
	}
}

func TestService_PublishSyncDeliversToEverySubscriber(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var mu sync.Mutex
	var got []string
	for _, name := range []string{"a", "b"} {
		name := name
		_, err := svc.Subscribe(interfaces.EventRunStarted, func(ctx context.Context, event interfaces.Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name)
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}))
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestService_PublishSyncReportsHandlerErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	_, err := svc.Subscribe(interfaces.EventRunCompleted, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("nope")
	})
	require.NoError(t, err)

	err = svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunCompleted})
	require.Error(t, err)
}

func TestService_PublishIsAsync(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	done := make(chan interfaces.Event, 1)
	_, err := svc.Subscribe(interfaces.EventSnapshotUpdated, func(ctx context.Context, event interfaces.Event) error {
		done <- event
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventSnapshotUpdated, Payload: "x"}))

	select {
	case event := <-done:
		assert.Equal(t, "x", event.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestService_Unsubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	calls := 0
	id, err := svc.Subscribe(interfaces.EventRunStarted, func(ctx context.Context, event interfaces.Event) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, svc.Unsubscribe(interfaces.EventRunStarted, id))
	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}))
	assert.Equal(t, 0, calls)

	assert.Error(t, svc.Unsubscribe(interfaces.EventRunStarted, id))
}

func TestService_SubscribeNilHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	_, err := svc.Subscribe(interfaces.EventRunStarted, nil)
	assert.Error(t, err)
}

func TestService_PanickingHandlerDoesNotBreakPublishSync(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	_, err := svc.Subscribe(interfaces.EventRunStarted, func(ctx context.Context, event interfaces.Event) error {
		panic("handler bug")
	})
	require.NoError(t, err)

	assert.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}))
}
