package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout  = 5 * time.Second
	wsSendQueueSize = 16
)

// Hub broadcasts notifications to connected app clients over WebSocket. It
// implements Pusher, so an in-app session receives the same messages the
// webhook transport does.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
	closed   bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan *Message
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon fronts a trusted app client, not arbitrary web pages.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and keeps the client registered until its
// connection drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &hubClient{
		conn: conn,
		send: make(chan *Message, wsSendQueueSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Notification client connected", zap.Int("clients", count))

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *Hub) writeLoop(client *hubClient) {
	for msg := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.logger.Debug("WebSocket write failed", zap.Error(err))
			h.drop(client)
			return
		}
	}
}

// readLoop exists to detect disconnects; inbound messages are discarded.
func (h *Hub) readLoop(client *hubClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
	_ = client.conn.Close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Push broadcasts a notification to every connected client. A slow client's
// full queue drops the message for that client only.
func (h *Hub) Push(_ context.Context, msg *Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.logger.Debug("Dropping notification for slow client")
		}
	}
	return nil
}

// Close disconnects every client and rejects future connections.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for client := range h.clients {
		close(client.send)
		_ = client.conn.Close()
		delete(h.clients, client)
	}
}
