// Package rtc wraps the media-negotiation capability behind a small
// interface: sessions produce and consume opaque signal payloads and
// eventually surface a remote media stream. The session layer drives it
// without knowing what is inside a payload.
package rtc

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mindmesh/roomcall/internal/media"
)

// ErrNegotiationFailed is reported when the underlying transport gives up
// on a link. The failed link alone is torn down; no retry is attempted.
var ErrNegotiationFailed = errors.New("negotiation failed")

// SessionConfig configures one negotiation session.
type SessionConfig struct {
	// Initiator decides who produces the offer. Trickle is always off:
	// exactly one outbound payload per direction.
	Initiator bool

	// Stream is the shared local media; the session subscribes to its
	// tracks without taking ownership.
	Stream *media.Stream

	// DisplayName is announced to the peer over the control channel.
	DisplayName string
}

// Session is one negotiation with exactly one remote participant.
//
// Callback registration is not synchronized against the session's event
// sources; register all callbacks before the first Signal call (for the
// initiator, before the session has a chance to gather).
type Session interface {
	// Start begins negotiation. Initiator sessions produce their offer
	// payload after Start; responder sessions start negotiating on the
	// first Signal call and Start is a no-op.
	Start() error

	// OnSignal registers the callback for locally produced payloads.
	OnSignal(func(json.RawMessage))

	// OnStream registers the callback fired once when the remote media
	// stream becomes available.
	OnStream(func(*RemoteStream))

	// OnControl registers the callback for control-channel messages from
	// the peer.
	OnControl(func(ControlMessage))

	// OnFailure registers the callback for fatal session errors.
	OnFailure(func(error))

	// Signal feeds one remote payload in.
	Signal(payload json.RawMessage) error

	// SendControl delivers a control message to the peer, if the control
	// channel is open.
	SendControl(msg ControlMessage) error

	// Close releases the session. Idempotent and safe in any state.
	Close() error
}

// Engine creates negotiation sessions. It is the replaceable collaborator:
// production uses the pion implementation, tests substitute fakes.
type Engine interface {
	NewSession(cfg SessionConfig) (Session, error)
}

// RemoteStream collects the media tracks received from one peer.
type RemoteStream struct {
	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func (s *RemoteStream) add(t *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

// Kinds lists the track kinds received so far.
func (s *RemoteStream) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.tracks))
	for _, t := range s.tracks {
		kinds = append(kinds, t.Kind().String())
	}
	return kinds
}

// TrackCount reports how many remote tracks have arrived.
func (s *RemoteStream) TrackCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}
