package hub

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the largest frame accepted from a client
	maxMessageSize = 64 * 1024
)

// Conn is the subset of a websocket connection the hub needs.
// *websocket.Conn from gofiber/contrib satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client represents a single websocket connection. It can be sent to
// directly before it joins the hub's broadcast set.
type Client struct {
	ID string

	hub  *Hub
	conn Conn
	send chan Message

	mu     sync.Mutex
	closed bool

	done chan struct{}
}

// NewClient creates a client bound to hub. It does not join the
// broadcast set until Register is called.
func NewClient(hub *Hub, conn Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Message, hub.cfg.ClientBuffer), // Buffered channel for backpressure
		done: make(chan struct{}),
	}
}

// Run starts the client's write pump and reads frames until the
// connection closes, passing each one to handle.
// This should be called in the websocket handler
func (c *Client) Run(handle func(data []byte)) {
	go c.writePump()
	c.readPump(handle) // Blocks until connection closes
}

// Send queues msg for this client only. It never blocks and reports
// whether the message was queued.
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// SendJSON encodes v and queues it for this client.
func (c *Client) SendJSON(v any) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	if !c.Send(msg) {
		return ErrClientClosed
	}
	return nil
}

// Close stops accepting messages. Anything already queued is still
// written before the close frame.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Done is closed once the write pump has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readPump reads messages from the websocket connection
// It keeps the connection alive and detects disconnection
func (c *Client) readPump(handle func(data []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(data)
	}
}

// writePump writes messages to the websocket connection
// Only this goroutine writes to the connection - no race conditions!
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Send channel closed - send close frame
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message.Data); err != nil {
				c.hub.log.Debug("client write failed", "client", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
