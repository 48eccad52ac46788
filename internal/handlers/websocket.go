package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/investiq/internal/interfaces"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

// wsMessage is the frame relayed to websocket clients
type wsMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// wsClient wraps one connection with a buffered outbound queue so a slow
// reader never blocks the broadcast path.
type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

// WebSocketHandler relays run lifecycle events to connected clients. Every
// event the coordinator publishes (run created, progress, step completed,
// status change) is broadcast as a JSON frame.
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	clients  map[*wsClient]bool
	mu       sync.Mutex
	logger   arbor.ILogger
}

// NewWebSocketHandler creates the handler and subscribes it to the event bus
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]bool),
		logger:  logger,
	}

	if events != nil {
		for _, eventType := range []interfaces.EventType{
			interfaces.EventRunCreated,
			interfaces.EventRunProgress,
			interfaces.EventRunStatusChange,
			interfaces.EventStepCompleted,
		} {
			events.Subscribe(eventType, h.relayEvent)
		}
	}

	return h
}

// HandleWebSocket upgrades the connection and serves it until close.
// GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan wsMessage, clientSendSize),
	}

	h.mu.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("remote", r.RemoteAddr).
		Int("clients", clientCount).
		Msg("WebSocket client connected")

	go h.writePump(client)
	h.readPump(client)
}

// relayEvent bridges the event bus onto every connected client
func (h *WebSocketHandler) relayEvent(ctx context.Context, event interfaces.Event) error {
	h.broadcast(wsMessage{
		Type:    string(event.Type),
		Payload: event.Payload,
	})
	return nil
}

func (h *WebSocketHandler) broadcast(msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Queue full: drop the client rather than stall the run
			h.dropClientLocked(client)
		}
	}
}

// readPump discards inbound frames; the socket is one-way. It exists to
// detect disconnects and answer control frames.
func (h *WebSocketHandler) readPump(client *wsClient) {
	defer func() {
		h.mu.Lock()
		h.dropClientLocked(client)
		h.mu.Unlock()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writePump(client *wsClient) {
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Msg("WebSocket write failed")
			h.mu.Lock()
			h.dropClientLocked(client)
			h.mu.Unlock()
			return
		}
	}
	client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	client.conn.Close()
}

// dropClientLocked removes a client; callers hold h.mu
func (h *WebSocketHandler) dropClientLocked(client *wsClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
}

// ClientCount reports the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
