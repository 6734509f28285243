// Package protocol defines the websocket wire format shared by the
// signaling server and the client. Negotiation payloads are opaque: they
// travel as raw JSON and are never inspected on either side of the relay.
package protocol

import "encoding/json"

// Event names. The negotiation events are relayed verbatim by the server;
// only the envelope event name changes across the relay (call-user becomes
// incoming-call, answer-call becomes call-accepted).
const (
	EventJoinRoom     = "join-room"
	EventJoined       = "joined"
	EventUserJoined   = "user-joined"
	EventCallUser     = "call-user"
	EventIncomingCall = "incoming-call"
	EventAnswerCall   = "answer-call"
	EventCallAccepted = "call-accepted"
	EventUserLeft     = "user-left"
	EventError        = "error"
)

// Envelope wraps every message on the signaling channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoomPayload is sent by a client to enter a room.
type JoinRoomPayload struct {
	UserName string `json:"userName"`
	RoomID   string `json:"roomId"`
}

// JoinedPayload acks a join and carries the server-assigned participant id.
type JoinedPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// UserJoinedPayload announces a new member to the existing members of a room.
type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// CallUserPayload asks the server to relay an offer to one participant.
type CallUserPayload struct {
	UserToCall string          `json:"userToCall"`
	SignalData json.RawMessage `json:"signalData"`
	From       string          `json:"from"`
	Name       string          `json:"name"`
}

// IncomingCallPayload is the relayed form of call-user.
type IncomingCallPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
	Name   string          `json:"name"`
}

// AnswerCallPayload asks the server to relay an answer back to the caller.
type AnswerCallPayload struct {
	Signal json.RawMessage `json:"signal"`
	To     string          `json:"to"`
}

// CallAcceptedPayload is the relayed form of answer-call.
type CallAcceptedPayload struct {
	Signal json.RawMessage `json:"signal"`
	From   string          `json:"from"`
}

// UserLeftPayload announces a departure to the remaining members.
type UserLeftPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload carries a server-side rejection.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: data}, nil
}
