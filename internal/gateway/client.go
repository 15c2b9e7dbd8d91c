package gateway

import (
	"errors"
	"sync"
	"time"

	"gupshup/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message
	pongWait = 60 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

var errEndpointClosed = errors.New("endpoint closed")
var errSendBufferFull = errors.New("send buffer full")

// Client is one live authenticated connection. It is the registry
// endpoint for its user: the fan-out router delivers frames through it.
type Client struct {
	gateway  *Gateway
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	userID   string
	username string

	closeOnce sync.Once
}

func newClient(g *Gateway, conn *websocket.Conn, userID, username string) *Client {
	return &Client{
		gateway:  g,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		userID:   userID,
		username: username,
	}
}

// Deliver queues a frame for the write pump without blocking the router.
// A closed or backed-up connection reports an error; the router drops the
// frame and moves on.
func (c *Client) Deliver(frame []byte) error {
	select {
	case <-c.done:
		return errEndpointClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errEndpointClosed
	default:
		return errSendBufferFull
	}
}

// readPump reads inbound frames and hands them to the gateway's dispatch
// table. Events from one connection are handled in order; connections run
// in parallel.
func (c *Client) readPump() {
	defer c.gateway.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error for user %s: %v", c.userID, err)
			}
			break
		}
		c.gateway.handleInbound(c, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("Write error for user %s: %v", c.userID, err)
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
