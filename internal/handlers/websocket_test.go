package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
	"github.com/ternarybob/usagedash/internal/services/events"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_HelloCarriesSchedulerStatus(t *testing.T) {
	next := time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)
	scheduler := &fakeScheduler{status: models.SchedulerStatus{IsScraping: true, NextRefresh: &next}}
	handler := NewWebSocketHandler(nil, scheduler, arbor.NewLogger())

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	msg := readMessage(t, conn)

	assert.Equal(t, "hello", msg.Type)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, handler.serverInstanceID, payload["serverInstanceId"])
	status, ok := payload["status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, status["isScraping"])
}

// TestWebSocket_FanOut verifies that a published snapshot reaches every client
func TestWebSocket_FanOut(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	handler := NewWebSocketHandler(eventService, nil, logger)
	defer handler.Close()

	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dial(t, server)
		require.Equal(t, "hello", readMessage(t, conns[i]).Type)
	}
	require.Eventually(t, func() bool { return handler.ClientCount() == numClients }, 2*time.Second, 10*time.Millisecond)

	stamp := time.Date(2026, 3, 2, 10, 10, 0, 0, time.UTC)
	aggregate := models.AggregateSnapshot{
		LastUpdated: &stamp,
		Accounts:    []models.UsageSnapshot{{AccountIndex: 1, Status: models.StatusOK}},
	}
	require.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventSnapshotUpdated,
		Payload: aggregate,
	}))

	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			c.SetReadDeadline(time.Now().Add(5 * time.Second))
			var msg struct {
				Type    string                   `json:"type"`
				Payload models.AggregateSnapshot `json:"payload"`
			}
			_, data, err := c.ReadMessage()
			if !assert.NoError(t, err) {
				return
			}
			if !assert.NoError(t, json.Unmarshal(data, &msg)) {
				return
			}
			assert.Equal(t, string(interfaces.EventSnapshotUpdated), msg.Type)
			assert.Len(t, msg.Payload.Accounts, 1)
		}(conn)
	}
	wg.Wait()
}

func TestWebSocket_CloseUnsubscribes(t *testing.T) {
	logger := arbor.NewLogger()
	eventService := events.NewService(logger)
	handler := NewWebSocketHandler(eventService, nil, logger)
	assert.Len(t, handler.subscriptions, len(broadcastEvents))

	require.NoError(t, handler.Close())
	assert.Empty(t, handler.subscriptions)

	// Publishing after close has no subscribers left to call
	require.NoError(t, eventService.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunStarted}))
}

func TestWebSocket_ClientDisconnect(t *testing.T) {
	handler := NewWebSocketHandler(nil, nil, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return handler.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
