package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client represents a connected UI WebSocket client
type Client struct {
	server    *Server
	conn      *websocket.Conn
	send      chan interface{}
	id        string
	closeOnce sync.Once
}

// enqueue queues a message for the client without blocking. Slow clients
// lose updates rather than stalling the broadcaster.
func (c *Client) enqueue(msg interface{}) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.server.logger.Warnw("Client send channel full, dropping message",
			"client_id", c.id,
		)
		return false
	}
}

// readPump drains incoming messages. The UI stream is one-way; reads exist
// to process control frames and detect disconnects.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error",
					"client_id", c.id,
					"error", err,
				)
			}
			return
		}
	}
}

// writePump writes queued messages to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("Message write error",
					"client_id", c.id,
					"error", err,
				)
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

// close safely closes the client's send channel. sync.Once prevents
// double-close panics when unregister races with shutdown.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}
