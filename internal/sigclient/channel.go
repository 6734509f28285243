// Package sigclient is the client side of the signaling channel: one
// persistent websocket to the rendezvous server, plus a demultiplexer that
// sorts the server's events into typed channels.
package sigclient

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindmesh/roomcall/internal/protocol"
)

// ErrChannelClosed rejects sends on a channel whose connection is gone.
var ErrChannelClosed = errors.New("signaling channel closed")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Channel manages the websocket connection to the signaling server.
// Messages leave in send order and arrive in server order; when the
// connection drops, the incoming channel closes and the local participant
// id it implied is dead with it.
type Channel struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *protocol.Envelope
	outgoing  chan *protocol.Envelope

	// done is closed exactly once, by Close or by the write pump dying,
	// so senders never wedge on a pump that is no longer draining.
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(serverURL string) *Channel {
	return &Channel{
		serverURL: serverURL,
		incoming:  make(chan *protocol.Envelope, 32),
		outgoing:  make(chan *protocol.Envelope, 32),
		done:      make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the pumps.
func (c *Channel) Connect() error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

func (c *Channel) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		c.incoming <- &env
	}
}

func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Close()
	}()

	for {
		select {
		case env := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Send marshals payload and queues it for delivery. Ordering follows call
// order for a single caller. Returns ErrChannelClosed once the connection
// is gone rather than blocking on a pump that stopped draining.
func (c *Channel) Send(event string, payload any) error {
	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	select {
	case c.outgoing <- env:
		return nil
	case <-c.done:
		return ErrChannelClosed
	}
}

// Incoming returns the channel of server events. It closes when the
// connection is lost.
func (c *Channel) Incoming() <-chan *protocol.Envelope {
	return c.incoming
}

// Close tears the connection down. Safe to call from any goroutine, any
// number of times.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
