package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pdlbus/internal/constants"
	"pdlbus/internal/logger"
)

var ErrConsumerClosed = errors.New("consumer closed")

// WebSocketConsumer writes frames as text messages to one client.
type WebSocketConsumer struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       logger.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewWebSocketConsumer(conn *websocket.Conn, writeTimeout time.Duration, log logger.Logger) *WebSocketConsumer {
	if writeTimeout <= 0 {
		writeTimeout = constants.DefaultBridgeWriteWait
	}
	return &WebSocketConsumer{
		conn:         conn,
		writeTimeout: writeTimeout,
		logger:       log,
		done:         make(chan struct{}),
	}
}

func (c *WebSocketConsumer) Send(_ context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConsumerClosed
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *WebSocketConsumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the client goes away or Close is called.
func (c *WebSocketConsumer) Done() <-chan struct{} {
	return c.done
}

// ReadLoop discards client messages until the connection fails, then marks
// the consumer closed. Control frames are handled by the read.
func (c *WebSocketConsumer) ReadLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debugw("WebSocket read failed", "error", err)
			}
			c.markClosed()
			return
		}
	}
}

func (c *WebSocketConsumer) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.done)
	return true
}

// Close sends a normal closure and releases the connection.
func (c *WebSocketConsumer) Close() error {
	c.mu.Lock()
	if !c.closed {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	c.mu.Unlock()

	c.markClosed()
	return c.conn.Close()
}
