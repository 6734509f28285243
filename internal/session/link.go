package session

import (
	"time"

	"github.com/mindmesh/roomcall/internal/rtc"
)

// Role says which side of the offer/answer exchange this link is on.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// State is the peer link lifecycle. Transitions are Created→Negotiating→
// Connected→Closed, plus a direct jump to Closed from anywhere on
// departure or failure. Closed is terminal.
type State int

const (
	StateCreated State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Link is the local representation of one candidate media path to one
// remote participant. The two ends of a call hold independent Links that
// only ever coordinate through relayed signal payloads. Links are owned by
// the Manager and touched only from its run loop.
type Link struct {
	RemoteID   string
	RemoteName string
	Role       Role

	// Remote is set once negotiation completes.
	Remote *rtc.RemoteStream

	// Remote-reported shared enable flags, updated via control messages.
	remoteAudio bool
	remoteVideo bool

	state State
	sess  rtc.Session
	timer *time.Timer
}

func newLink(remoteID, remoteName string, role Role, sess rtc.Session) *Link {
	return &Link{
		RemoteID:    remoteID,
		RemoteName:  remoteName,
		Role:        role,
		remoteAudio: true,
		remoteVideo: true,
		state:       StateCreated,
		sess:        sess,
	}
}

func (l *Link) State() State { return l.state }

// transition applies a state change if it is legal and reports whether it
// took effect. Closed never transitions out.
func (l *Link) transition(to State) bool {
	if l.state == StateClosed {
		return false
	}
	switch to {
	case StateNegotiating:
		if l.state != StateCreated {
			return false
		}
	case StateConnected:
		if l.state != StateNegotiating && l.state != StateCreated {
			return false
		}
	case StateClosed:
		// Always legal.
	default:
		return false
	}
	l.state = to
	return true
}

// close releases the adapter and all link resources. Idempotent.
func (l *Link) close() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.sess != nil {
		l.sess.Close()
	}
}
