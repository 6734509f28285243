package signaling

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB is enough for a full
	// trickle-less SDP blob.
	maxMessageSize = 64 * 1024
)

// Client is one connected participant on the signaling server. The id is
// assigned at upgrade time and is valid only for the lifetime of this
// websocket connection.
type Client struct {
	Hub  *Hub
	Conn *websocket.Conn

	// ID is the server-assigned participant id.
	ID string

	// Name and RoomID are set by the hub when the client joins a room.
	Name   string
	RoomID string

	// Send is the buffered channel of outbound envelopes, drained by
	// WritePump. Closed by the hub on unregister.
	Send chan *protocol.Envelope

	log zerolog.Logger
}

// NewClient wires a freshly upgraded connection to the hub. The caller is
// expected to start both pumps and push the client onto hub.Register.
func (h *Hub) NewClient(conn *websocket.Conn, id string) *Client {
	return &Client{
		Hub:  h,
		Conn: conn,
		ID:   id,
		Send: make(chan *protocol.Envelope, 256),
		log:  h.log.With().Str("participant_id", id).Logger(),
	}
}

// enqueue drops the envelope if the client's send buffer is full rather than
// blocking the hub loop on one slow consumer.
func (c *Client) enqueue(env *protocol.Envelope) {
	select {
	case c.Send <- env:
	default:
		c.log.Warn().Str("event", env.Event).Msg("send buffer full, dropping message")
	}
}

// ReadPump pumps envelopes from the websocket connection to the hub.
//
// Runs in a per-connection goroutine; all reads happen here so there is at
// most one reader per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env protocol.Envelope
		if err := c.Conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Error().Err(err).Msg("unexpected close")
			}
			break
		}

		c.Hub.Inbound <- &inbound{client: c, env: &env}
	}
}

// WritePump pumps envelopes from the hub to the websocket connection and
// keeps the connection alive with periodic pings.
//
// Runs in a per-connection goroutine; all writes happen here so there is at
// most one writer per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(env); err != nil {
				c.log.Error().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
