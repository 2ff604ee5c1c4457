package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TheMichaelB/streamfs/internal/events"
	"github.com/TheMichaelB/streamfs/internal/models"
)

// WatchClient consumes the host bridge change feed. Each websocket message
// is one flushed batch of change events.
type WatchClient struct {
	url    string
	token  string
	logger *events.Logger

	// Connection state
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	// Channels
	batches chan []models.ChangeEvent
	errors  chan error
	done    chan struct{}

	// Heartbeat
	pingInterval time.Duration
	pongTimeout  time.Duration
}

// NewWatchClient creates a change feed client for the given http(s) or
// ws(s) URL.
func NewWatchClient(watchURL, token string, logger *events.Logger) *WatchClient {
	if strings.HasPrefix(watchURL, "http") {
		watchURL = "ws" + strings.TrimPrefix(watchURL, "http")
	}

	return &WatchClient{
		url:          watchURL,
		token:        token,
		logger:       logger.WithField("component", "watch_client"),
		batches:      make(chan []models.ChangeEvent, 100),
		errors:       make(chan error, 10),
		done:         make(chan struct{}),
		pingInterval: 30 * time.Second,
		pongTimeout:  10 * time.Second,
	}
}

// Connect establishes the websocket connection.
func (c *WatchClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("already connected")
	}

	c.logger.WithField("url", c.url).Info("Connecting to change feed")

	headers := http.Header{}
	if c.token != "" {
		headers.Set("Authorization", "Bearer "+c.token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connect failed: %w", err)
	}

	c.conn = conn
	c.closed = false

	go c.readLoop(conn)
	go c.pingLoop()

	return nil
}

// Batches returns the change batch channel. It is closed when the
// connection ends.
func (c *WatchClient) Batches() <-chan []models.ChangeEvent {
	return c.batches
}

// Errors returns the error channel.
func (c *WatchClient) Errors() <-chan error {
	return c.errors
}

// Close closes the websocket connection.
func (c *WatchClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)

	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

		err := c.conn.Close()
		c.conn = nil
		return err
	}

	return nil
}

func (c *WatchClient) readLoop(conn *websocket.Conn) {
	defer func() {
		_ = c.Close()
		close(c.batches)
		close(c.errors)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongTimeout + c.pingInterval))
	})

	for {
		var batch []models.ChangeEvent
		if err := conn.ReadJSON(&batch); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure) {
				c.logger.WithError(err).Error("Change feed read error")
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		c.logger.WithField("events", len(batch)).Debug("Received change batch")

		select {
		case c.batches <- batch:
		case <-c.done:
			return
		}
	}
}

func (c *WatchClient) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			var err error
			if conn != nil {
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.pongTimeout))
			}
			c.mu.Unlock()

			if conn == nil {
				return
			}
			if err != nil {
				c.logger.WithError(err).Warn("Ping failed")
				return
			}

		case <-c.done:
			return
		}
	}
}
