package signaling

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/protocol"
)

// inbound pairs an envelope with the client that sent it.
type inbound struct {
	client *Client
	env    *protocol.Envelope
}

// Hub is the central brain of the signaling server. It owns all rooms and
// room membership; state is only ever touched from the Run goroutine, fed by
// the Register, Unregister and Inbound channels.
type Hub struct {
	Rooms map[string]*Room

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *inbound

	quit chan struct{}
	log  zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		Rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inbound),
		quit:       make(chan struct{}),
		log:        log,
	}
}

// Stop shuts down the hub loop and disconnects every client.
func (h *Hub) Stop() {
	close(h.quit)
}

// Run starts the hub's main processing loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.log.Info().Msg("stopping hub, disconnecting all clients")
			for _, room := range h.Rooms {
				for _, member := range room.Members {
					member.Conn.Close()
				}
			}
			return

		case client := <-h.Register:
			// Not in a room yet; the client must send join-room first.
			h.log.Info().Str("participant_id", client.ID).Msg("client registered")

		case client := <-h.Unregister:
			h.removeFromRoom(client)
			close(client.Send)
			h.log.Info().Str("participant_id", client.ID).Msg("client unregistered")

		case msg := <-h.Inbound:
			h.dispatch(msg.client, msg.env)
		}
	}
}

func (h *Hub) dispatch(client *Client, env *protocol.Envelope) {
	switch env.Event {
	case protocol.EventJoinRoom:
		var p protocol.JoinRoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomID == "" || p.UserName == "" {
			h.sendError(client, "join-room requires userName and roomId")
			return
		}
		h.joinRoom(client, p.RoomID, p.UserName)

	case protocol.EventCallUser:
		var p protocol.CallUserPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.UserToCall == "" {
			h.sendError(client, "malformed call-user payload")
			return
		}
		h.relay(client, p.UserToCall, protocol.EventIncomingCall, protocol.IncomingCallPayload{
			Signal: p.SignalData,
			From:   client.ID,
			Name:   client.Name,
		})

	case protocol.EventAnswerCall:
		var p protocol.AnswerCallPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.To == "" {
			h.sendError(client, "malformed answer-call payload")
			return
		}
		h.relay(client, p.To, protocol.EventCallAccepted, protocol.CallAcceptedPayload{
			Signal: p.Signal,
			From:   client.ID,
		})

	default:
		h.log.Warn().Str("event", env.Event).Str("participant_id", client.ID).Msg("unknown event")
	}
}

// joinRoom adds the client to a room, creating it on first join. Existing
// members are told about the joiner via user-joined; the joiner is only
// acked, not given the member list. Discovery is one-way: each existing
// member calls the newcomer.
func (h *Hub) joinRoom(client *Client, roomID, userName string) {
	// A participant belongs to at most one room; a re-join moves it.
	if client.RoomID != "" && client.RoomID != roomID {
		h.removeFromRoom(client)
	}

	room, ok := h.Rooms[roomID]
	if !ok {
		room = NewRoom(roomID)
		h.Rooms[roomID] = room
		h.log.Info().Str("room_id", roomID).Msg("room created")
	}

	client.Name = userName
	client.RoomID = roomID
	room.Members[client.ID] = client

	ack, _ := protocol.NewEnvelope(protocol.EventJoined, protocol.JoinedPayload{
		UserID: client.ID,
		RoomID: roomID,
	})
	client.enqueue(ack)

	announce, _ := protocol.NewEnvelope(protocol.EventUserJoined, protocol.UserJoinedPayload{
		UserID:   client.ID,
		UserName: userName,
	})
	room.BroadcastExcept(client.ID, announce)

	h.log.Info().
		Str("room_id", roomID).
		Str("participant_id", client.ID).
		Str("name", userName).
		Int("members", len(room.Members)).
		Msg("participant joined room")
}

// relay forwards a negotiation payload to one participant in the sender's
// room, re-tagged with the relayed event name. Payloads addressed to a
// participant that is gone are dropped.
func (h *Hub) relay(client *Client, targetID, event string, payload any) {
	if client.RoomID == "" {
		h.sendError(client, "join a room first")
		return
	}

	room, ok := h.Rooms[client.RoomID]
	if !ok {
		h.sendError(client, "room not found")
		return
	}

	target := room.Member(targetID)
	if target == nil {
		// Stale relay: the target already left. Not an error for the sender.
		h.log.Debug().
			Str("event", event).
			Str("from", client.ID).
			Str("target", targetID).
			Msg("dropping relay to absent participant")
		return
	}

	env, err := protocol.NewEnvelope(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal relay payload")
		return
	}
	target.enqueue(env)
}

// removeFromRoom takes the client out of its room, announces the departure
// and deletes the room once it is empty. No-op for clients not in a room.
func (h *Hub) removeFromRoom(client *Client) {
	if client.RoomID == "" {
		return
	}

	room, ok := h.Rooms[client.RoomID]
	if ok {
		delete(room.Members, client.ID)

		left, _ := protocol.NewEnvelope(protocol.EventUserLeft, protocol.UserLeftPayload{
			UserID: client.ID,
		})
		room.BroadcastExcept(client.ID, left)

		if room.Empty() {
			delete(h.Rooms, room.ID)
			h.log.Info().Str("room_id", room.ID).Msg("room deleted")
		}
	}

	h.log.Info().
		Str("room_id", client.RoomID).
		Str("participant_id", client.ID).
		Msg("participant left room")
	client.RoomID = ""
	client.Name = ""
}

func (h *Hub) sendError(client *Client, msg string) {
	env, _ := protocol.NewEnvelope(protocol.EventError, protocol.ErrorPayload{Message: msg})
	client.enqueue(env)
}
