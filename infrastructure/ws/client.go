package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 * 1024
)

// UserClient is a single WebSocket connection owned by one signed-in user.
type UserClient struct {
	UserId string

	hub  IHub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewClient(userId string, hub IHub, conn *websocket.Conn) *UserClient {
	return &UserClient{
		UserId: userId,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

// Send enqueues a payload for delivery to this connection. It never blocks;
// a full queue drops the payload and reports false. Sending after CloseSend
// is a no-op, so callers may race with the hub tearing the client down.
func (c *UserClient) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		log.Printf("Send queue full for client: %s", c.UserId)
		return false
	}
}

// CloseSend shuts down the send queue, letting WritePump drain and exit.
// Idempotent and safe to call concurrently with Send.
func (c *UserClient) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump pumps messages from the WebSocket connection to onMessage.
// It runs on the connection's goroutine and unregisters the client on exit.
func (c *UserClient) ReadPump(onMessage func(data []byte)) {
	defer func() {
		c.hub.UnregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Read error from %s: %v", c.UserId, err)
			}
			break
		}
		onMessage(message)
	}
}

// WritePump pumps messages from the send queue to the WebSocket connection.
// This runs in its own goroutine per client.
func (c *UserClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One frame per payload; coalescing frames would break JSON
			// parsing on the client side.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
