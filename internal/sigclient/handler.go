package sigclient

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/protocol"
)

// Handler routes incoming signaling envelopes to typed channels. The one
// read loop delivers in server order, but the per-event channels are
// buffered, so a consumer selecting over them can observe events for the
// same remote out of order when backlogged (e.g. user-joined after the
// matching user-left). A link created that way never negotiates and is
// reaped by the session manager's negotiation timeout.
type Handler struct {
	channel *Channel
	log     zerolog.Logger

	Joined       chan protocol.JoinedPayload
	UserJoined   chan protocol.UserJoinedPayload
	IncomingCall chan protocol.IncomingCallPayload
	CallAccepted chan protocol.CallAcceptedPayload
	UserLeft     chan protocol.UserLeftPayload
	Errors       chan string

	// Lost is closed when the signaling channel disconnects. Everything
	// derived from the server-assigned id is invalid after that.
	Lost chan struct{}
}

func NewHandler(channel *Channel, log zerolog.Logger) *Handler {
	return &Handler{
		channel:      channel,
		log:          log,
		Joined:       make(chan protocol.JoinedPayload, 1),
		UserJoined:   make(chan protocol.UserJoinedPayload, 16),
		IncomingCall: make(chan protocol.IncomingCallPayload, 16),
		CallAccepted: make(chan protocol.CallAcceptedPayload, 16),
		UserLeft:     make(chan protocol.UserLeftPayload, 16),
		Errors:       make(chan string, 4),
		Lost:         make(chan struct{}),
	}
}

// Start consumes the channel's incoming stream until it closes, then
// signals Lost. Run it in its own goroutine.
func (h *Handler) Start() {
	defer close(h.Lost)

	for env := range h.channel.Incoming() {
		switch env.Event {
		case protocol.EventJoined:
			var p protocol.JoinedPayload
			if h.decode(env, &p) {
				h.Joined <- p
			}

		case protocol.EventUserJoined:
			var p protocol.UserJoinedPayload
			if h.decode(env, &p) {
				h.UserJoined <- p
			}

		case protocol.EventIncomingCall:
			var p protocol.IncomingCallPayload
			if h.decode(env, &p) {
				h.IncomingCall <- p
			}

		case protocol.EventCallAccepted:
			var p protocol.CallAcceptedPayload
			if h.decode(env, &p) {
				h.CallAccepted <- p
			}

		case protocol.EventUserLeft:
			var p protocol.UserLeftPayload
			if h.decode(env, &p) {
				h.UserLeft <- p
			}

		case protocol.EventError:
			var p protocol.ErrorPayload
			if h.decode(env, &p) {
				h.Errors <- p.Message
			}

		default:
			h.log.Debug().Str("event", env.Event).Msg("ignoring unknown event")
		}
	}
}

func (h *Handler) decode(env *protocol.Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.log.Warn().Err(err).Str("event", env.Event).Msg("malformed payload")
		return false
	}
	return true
}
