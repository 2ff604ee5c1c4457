package hostapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
	"github.com/TheMichaelB/streamfs/internal/streamfs"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second

	// clientBuffer is how many batches a client may lag behind before it
	// is disconnected.
	clientBuffer = 64
)

// Hub fans flushed change batches out to websocket clients. Each message
// is one JSON array of change events.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *events.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool

	unsubscribe func()
}

type hubClient struct {
	conn *websocket.Conn
	send chan []models.ChangeEvent
	once sync.Once
}

func (c *hubClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewHub subscribes to the change events of fs.
func NewHub(fs *streamfs.FS, logger *events.Logger) *Hub {
	h := &Hub{
		logger:  logger.WithField("component", "watch_hub"),
		clients: make(map[*hubClient]struct{}),
	}
	h.unsubscribe = fs.Subscribe(h.broadcast)
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams batches until the client goes
// away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}

	c := &hubClient{conn: conn, send: make(chan []models.ChangeEvent, clientBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.WithField("clients", count).Debug("Watch client connected")

	go h.readLoop(c)
	h.writeLoop(c)
}

func (h *Hub) broadcast(batch []models.ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- batch:
		default:
			h.logger.Warn("Dropping slow watch client")
			delete(h.clients, c)
			c.stop()
		}
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// readLoop discards client messages and detects disconnects.
func (h *Hub) readLoop(c *hubClient) {
	defer h.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case batch, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(batch); err != nil {
				h.logger.WithError(err).Debug("Watch write failed")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongTimeout)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and stops receiving events.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()

	h.unsubscribe()
	for c := range clients {
		c.stop()
	}
}
