package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		ok   bool
	}{
		{"created to negotiating", StateCreated, StateNegotiating, true},
		{"negotiating to connected", StateNegotiating, StateConnected, true},
		{"created to connected", StateCreated, StateConnected, true},
		{"created to closed", StateCreated, StateClosed, true},
		{"negotiating to closed", StateNegotiating, StateClosed, true},
		{"connected to closed", StateConnected, StateClosed, true},
		{"connected to negotiating", StateConnected, StateNegotiating, false},
		{"negotiating twice", StateNegotiating, StateNegotiating, false},
		{"out of closed", StateClosed, StateNegotiating, false},
		{"closed to connected", StateClosed, StateConnected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLink("r1", "Remote", RoleInitiator, nil)
			l.state = tt.from

			ok := l.transition(tt.to)

			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.to, l.State())
			} else {
				assert.Equal(t, tt.from, l.State())
			}
		})
	}
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	sess := &fakeSession{}
	l := newLink("r1", "Remote", RoleResponder, sess)

	l.close()
	l.close()

	assert.Equal(t, StateClosed, l.State())
	assert.Equal(t, 1, sess.closeCount())
}

func TestLinkStartsWithRemoteFlagsEnabled(t *testing.T) {
	l := newLink("r1", "Remote", RoleInitiator, nil)

	assert.Equal(t, StateCreated, l.State())
	assert.True(t, l.remoteAudio)
	assert.True(t, l.remoteVideo)
}
