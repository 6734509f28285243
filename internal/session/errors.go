package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNegotiationTimeout closes a link stuck in Negotiating longer than
	// the configured bound.
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	// ErrChannelLost ends the whole session: the server-assigned id died
	// with the connection, so a rejoin is a fresh join, not a resume.
	ErrChannelLost = errors.New("signaling channel lost")
)

// CallError annotates a failure with the operation and, when relevant, the
// remote participant it concerned.
type CallError struct {
	Op     string
	Remote string
	Err    error
}

func (e *CallError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("%s (peer %s): %v", e.Op, e.Remote, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

func newPeerError(op, remote string, err error) *CallError {
	return &CallError{Op: op, Remote: remote, Err: err}
}
