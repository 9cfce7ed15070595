package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/spacewatch/monitor/internal/api"
	"github.com/obsidianstack/spacewatch/monitor/internal/session"
	"github.com/obsidianstack/spacewatch/monitor/internal/telemetry"
)

const (
	// writeTimeout bounds a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod is how often ping frames go out. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// sendBufSize is the per-client queue depth. A client whose queue is
	// full when a broadcast arrives is dropped.
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks belong to the reverse proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the JSON envelope sent to clients on connect and on every
// broadcast.
type Message struct {
	Event string               `json:"event"`
	Data  api.SnapshotResponse `json:"data"`
}

// Source supplies views and change notifications. The hub must be the only
// reader of Changed.
type Source interface {
	View() *session.View
	Changed() <-chan struct{}
}

// Hub manages WebSocket clients and broadcasts the session snapshot every
// interval and whenever the session publishes a new view.
type Hub struct {
	source   Source
	interval time.Duration
	metrics  *telemetry.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// client is one connected WebSocket peer. send is closed by whoever
// removes the client from the hub.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a Hub that broadcasts src every interval and on change.
func New(src Source, interval time.Duration, metrics *telemetry.Metrics) *Hub {
	if metrics == nil {
		metrics = telemetry.Discard()
	}
	return &Hub{
		source:   src,
		interval: interval,
		metrics:  metrics,
		clients:  make(map[*client]struct{}),
	}
}

// Run broadcasts until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-t.C:
			h.broadcast()
		case <-h.source.Changed():
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the request and serves the client. The current
// snapshot is queued before the pumps start so a new client has data without
// waiting for the next broadcast. Blocks until the connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
	}
	h.register(c)
	defer h.unregister(c)

	if data, err := h.buildMessage(); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}

	go c.writePump()
	c.readPump() // blocks until the connection closes
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- internal ---------------------------------------------------------------

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.metrics.WSClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
	slog.Debug("ws: client connected", "remote", c.conn.RemoteAddr().String())
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.metrics.WSClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

// broadcast encodes one snapshot and queues it for every client. Sends never
// block: a client that cannot keep up is disconnected instead.
func (h *Hub) broadcast() {
	data, err := h.buildMessage()
	if err != nil {
		slog.Error("ws: encode snapshot", "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			slog.Warn("ws: client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
			h.unregister(c)
		}
	}
}

func (h *Hub) buildMessage() ([]byte, error) {
	return json.Marshal(Message{
		Event: "snapshot",
		Data:  api.BuildSnapshot(h.source.View()),
	})
}

// closeAll drops every client. Each writePump sees its closed queue, sends a
// close frame and exits.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.metrics.WSClients.Set(0)
}

// writePump drains the client's queue onto the connection and sends a ping
// every pingPeriod. It runs in its own goroutine per client and owns all
// writes to conn.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Removed from the hub or hub shutting down.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames so pong and close control messages are processed,
// extending the read deadline on every pong. It returns when the peer goes
// away or misses a pong.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}
