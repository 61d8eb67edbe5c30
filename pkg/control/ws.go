package control

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSConn carries the control protocol over a direct Realtime WebSocket
// instead of a WebRTC data channel. Used by headless deployments running the
// token strategy without media, and by operational tooling.
type WSConn struct {
	ws *websocket.Conn
	ch *Channel

	mu     sync.Mutex
	closed bool
}

// DialWebSocket connects to the Realtime WebSocket endpoint with the given
// bearer credential, binds the channel, and starts the read loop.
// The url should already carry the model query parameter.
func DialWebSocket(ctx context.Context, url, bearer string, ch *Channel) (*WSConn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+bearer)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	ws, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("control: dial realtime: %w", err)
	}

	conn := &WSConn{ws: ws, ch: ch}
	ch.Bind(conn)
	if err := ch.HandleOpen(); err != nil {
		conn.Close()
		return nil, err
	}

	go conn.readLoop()

	return conn, nil
}

// Send writes one frame to the socket.
func (c *WSConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotOpen
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *WSConn) readLoop() {
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()

			if closed {
				c.ch.HandleClose()
			} else {
				c.ch.HandleError(err)
			}
			return
		}
		c.ch.HandleMessage(message)
	}
}

// Close shuts the socket down; the read loop reports the close to the
// channel.
func (c *WSConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.ws.Close()
}
