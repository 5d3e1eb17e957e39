package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	hub      *Hub
	courseID string
	conn     *websocket.Conn
	send     chan Message
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// NewClient wraps an upgraded connection for the given course channel.
func NewClient(hub *Hub, courseID string, conn *websocket.Conn, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		hub:      hub,
		courseID: courseID,
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

// stop signals both pumps to exit. The send channel itself is never closed:
// readPump may still be replying to a ping when the hub drops the client, and
// a send on a closed channel would take the process down.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// replyPong queues an application-level pong unless the client has been
// stopped or its buffer is full.
func (c *Client) replyPong() {
	select {
	case <-c.done:
	case c.send <- Message{Type: MessageTypePong}:
	default:
	}
}

// readPump drains inbound frames. Subscribers are read-mostly; the only
// accepted inbound message is an application-level ping.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.courseID, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("unexpected websocket close", zap.Error(err))
			}
			return
		}
		if msg.Type == MessageTypePing {
			c.replyPong()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
