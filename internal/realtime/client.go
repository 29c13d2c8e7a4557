package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongDelay is how long a silent client is kept before the read fails.
	pongDelay = 60 * time.Second
	// pingPeriod must be shorter than pongDelay.
	pingPeriod = (pongDelay * 9) / 10
	// maxFrameSize caps inbound frames; clients only send join and ping.
	maxFrameSize = 4096
)

// Client is a Channel backed by a websocket connection. Only the write loop
// writes to the socket once the client is running.
type Client struct {
	id     string
	conn   *websocket.Conn
	send   chan Event
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewClient wraps conn with a send buffer of bufferSize events.
func NewClient(conn *websocket.Conn, bufferSize int, logger *zap.Logger) *Client {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan Event, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// ID returns the connection handle.
func (c *Client) ID() string { return c.id }

// Send enqueues evt without blocking. A full buffer or a closed client drops
// the event.
func (c *Client) Send(evt Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- evt:
		return true
	default:
		return false
	}
}

// Close stops the write loop and closes the socket. Safe to call repeatedly.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// writeLoop drains the send buffer and keeps the connection alive with pings.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case evt := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				c.logger.Debug("failed to write event", zap.String("channel_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				// Expected when the other end goes away.
				c.logger.Debug("failed to write ping", zap.String("channel_id", c.id), zap.Error(err))
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection fails. Pongs extend
// the read deadline; a client ping frame is answered in-band.
func (c *Client) readLoop() {
	defer c.Close()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongDelay))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongDelay))
	})

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket receive error", zap.String("channel_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongDelay))
		if f.Event == FramePing {
			if evt, err := NewEvent(EventPong, nil); err == nil {
				c.Send(evt)
			}
		}
	}
}
