package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/pubsub"
	"security-monitor-service/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512

	// TopicParam selects the subscription pattern, e.g. /ws?topic=alerts/*.
	TopicParam    = "topic"
	clientBuffer  = 256
	closeDeadline = time.Second
)

// Subscriber is the broker capability the hub needs.
type Subscriber interface {
	Subscribe(pattern string, buffer int) (*pubsub.Subscription, error)
}

// Hub upgrades HTTP requests and streams broker messages to each client as JSON.
type Hub struct {
	broker   Subscriber
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func NewHub(broker Subscriber, logger *logging.Logger) *Hub {
	return &Hub{
		broker: broker,
		logger: logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get(TopicParam)
	if pattern == "" {
		pattern = domain.TopicAll
	}
	if !pubsub.ValidPattern(pattern) {
		http.Error(w, "invalid topic pattern", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.AttachError(err)...)
		return
	}

	sub, err := h.broker.Subscribe(pattern, clientBuffer)
	if err != nil {
		h.logger.Error("websocket subscribe failed", logging.AttachError(err, "pattern", pattern)...)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(closeDeadline))
		_ = conn.Close()
		return
	}

	c := &client{hub: h, conn: conn, sub: sub}
	if !h.register(c) {
		sub.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(closeDeadline))
		_ = conn.Close()
		return
	}
	h.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String(), "pattern", pattern)

	go c.writePump()
	go c.readPump()
}

// Clients reports connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.sub.Close()
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}
