package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// HelloPayload is the first message every client receives
type HelloPayload struct {
	ServerInstanceID string      `json:"serverInstanceId"`
	Status           interface{} `json:"status,omitempty"`
}

// broadcastEvents are forwarded to every connected client
var broadcastEvents = []interfaces.EventType{
	interfaces.EventRunStarted,
	interfaces.EventRunCompleted,
	interfaces.EventAccountScraped,
	interfaces.EventSnapshotUpdated,
}

type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	eventService     interfaces.EventService
	scheduler        interfaces.SchedulerService
	subscriptions    map[interfaces.EventType]string
	serverInstanceID string // clients use it to detect a server restart
}

// NewWebSocketHandler subscribes to run and snapshot events when eventService is set.
// scheduler may be nil.
func NewWebSocketHandler(eventService interfaces.EventService, scheduler interfaces.SchedulerService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		scheduler:        scheduler,
		subscriptions:    make(map[interfaces.EventType]string),
		serverInstanceID: uuid.New().String(),
	}

	if eventService != nil {
		h.subscribeToEvents()
	}

	return h
}

func (h *WebSocketHandler) subscribeToEvents() {
	for _, eventType := range broadcastEvents {
		eventType := eventType
		id, err := h.eventService.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			h.Broadcast(string(event.Type), event.Payload)
			return nil
		})
		if err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
			continue
		}
		h.subscriptions[eventType] = id
	}
}

// HandleWebSocket upgrades the connection and keeps it open until the client leaves.
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client connected")

	hello := HelloPayload{ServerInstanceID: h.serverInstanceID}
	if h.scheduler != nil {
		hello.Status = h.scheduler.Status()
	}
	h.send(conn, mutex, WSMessage{Type: "hello", Payload: hello})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// Broadcast sends one message to every connected client
func (h *WebSocketHandler) Broadcast(messageType string, payload interface{}) {
	msg := WSMessage{Type: messageType, Payload: payload}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.send(conn, mutexes[i], msg)
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	mutex.Lock()
	defer mutex.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from events and disconnects every client
func (h *WebSocketHandler) Close() error {
	if h.eventService != nil {
		for eventType, id := range h.subscriptions {
			if err := h.eventService.Unsubscribe(eventType, id); err != nil {
				h.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("Failed to unsubscribe WebSocket handler")
			}
		}
		h.subscriptions = make(map[interfaces.EventType]string)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, mutex := range h.clients {
		mutex.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		mutex.Unlock()
		conn.Close()
	}
	return nil
}
