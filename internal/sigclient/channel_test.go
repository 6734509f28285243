package sigclient

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mindmesh/roomcall/internal/protocol"
)

func TestSendAfterCloseDoesNotBlock(t *testing.T) {
	c := NewChannel("ws://localhost:9/ws")

	// No pump is draining; fill the outbound buffer completely.
	for i := 0; i < cap(c.outgoing); i++ {
		require.NoError(t, c.Send(protocol.EventJoinRoom, protocol.JoinRoomPayload{
			UserName: "Alice",
			RoomID:   "r1",
		}))
	}

	c.Close()

	// A dead channel rejects the send instead of wedging the caller.
	err := c.Send(protocol.EventJoinRoom, protocol.JoinRoomPayload{
		UserName: "Alice",
		RoomID:   "r1",
	})
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestCloseFromManyGoroutines(t *testing.T) {
	c := NewChannel("ws://localhost:9/ws")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	select {
	case <-c.done:
	default:
		t.Fatal("done not closed")
	}
}
