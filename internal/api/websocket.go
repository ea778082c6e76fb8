package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/thane-forge/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	clientWriteWait = 10 * time.Second
	clientSendBound = 64
)

// Hub fans out bus events to every connected WebSocket client. It
// subscribes to the event bus exactly once, at server start, rather
// than each connection subscribing independently.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// ConnectionCount reports the number of live WebSocket connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast is registered with events.Bus.SubscribeAll and is called
// from the dispatcher goroutine for every published event.
func (h *Hub) broadcast(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Debug("failed to marshal event for broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// slow consumer: drop the client rather than block the hub.
			h.disconnectLocked(c)
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(c)
}

func (h *Hub) disconnectLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}

// handleWebSocket upgrades the connection, sends the initial
// handshake frame, then pumps queued events to the client until it
// disconnects. Only this connection is torn down on a write failure;
// the hub and every other client are unaffected.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendBound)}
	s.hub.add(c)

	handshake, _ := json.Marshal(map[string]any{
		"type":    "connection",
		"status":  "connected",
		"message": "subscribed to thane-forge event stream",
	})
	select {
	case c.send <- handshake:
	default:
	}

	go s.readPump(c)
	s.writePump(c)
}

// readPump echoes inbound client frames back to the same client and
// keeps reading so control frames (ping/close) are processed and
// disconnects detected. An echo is dropped when the client's send
// buffer is full.
func (s *Server) readPump(c *client) {
	defer s.hub.remove(c)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.hub.mu.Lock()
		if _, ok := s.hub.clients[c]; ok {
			select {
			case c.send <- msg:
			default:
			}
		}
		s.hub.mu.Unlock()
	}
}

func (s *Server) writePump(c *client) {
	defer func() {
		s.hub.remove(c)
	}()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
