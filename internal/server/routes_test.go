package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmesh/roomcall/internal/protocol"
	"github.com/mindmesh/roomcall/internal/signaling"
)

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	hub := signaling.NewHub(zerolog.Nop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(NewRouter(hub, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *testConn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) send(event string, payload any) {
	c.t.Helper()
	env, err := protocol.NewEnvelope(event, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(env))
}

// expect reads until an envelope with the given event arrives.
func (c *testConn) expect(event string, v any) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env protocol.Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event != event {
			c.t.Logf("skipping %s while waiting for %s", env.Event, event)
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(env.Data, v))
		}
		return
	}
}

// expectNext reads exactly one envelope and asserts its event. Unlike
// expect it does not skip, so it also proves nothing else arrived first.
func (c *testConn) expectNext(event string, v any) {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env protocol.Envelope
	require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %s", event)
	require.Equal(c.t, event, env.Event)
	if v != nil {
		require.NoError(c.t, json.Unmarshal(env.Data, v))
	}
}

func (c *testConn) join(room, name string) string {
	c.t.Helper()
	c.send(protocol.EventJoinRoom, protocol.JoinRoomPayload{UserName: name, RoomID: room})
	var ack protocol.JoinedPayload
	c.expect(protocol.EventJoined, &ack)
	require.NotEmpty(c.t, ack.UserID)
	require.Equal(c.t, room, ack.RoomID)
	return ack.UserID
}

func TestTwoPartyCallFlow(t *testing.T) {
	srv := newServer(t)

	alice := dial(t, srv)
	aliceID := alice.join("r1", "Alice")

	bob := dial(t, srv)
	bobID := bob.join("r1", "Bob")
	require.NotEqual(t, aliceID, bobID)

	// The existing member learns about the joiner.
	var joined protocol.UserJoinedPayload
	alice.expect(protocol.EventUserJoined, &joined)
	assert.Equal(t, bobID, joined.UserID)
	assert.Equal(t, "Bob", joined.UserName)

	// Alice calls Bob; the offer is relayed verbatim as incoming-call.
	offer := json.RawMessage(`{"type":"offer","sdp":"alice-offer"}`)
	alice.send(protocol.EventCallUser, protocol.CallUserPayload{
		UserToCall: bobID,
		SignalData: offer,
		From:       aliceID,
		Name:       "Alice",
	})

	// Bob's first message after the join ack is the call itself: joiners
	// are not told about existing members, they wait to be called.
	var incoming protocol.IncomingCallPayload
	bob.expectNext(protocol.EventIncomingCall, &incoming)
	assert.Equal(t, aliceID, incoming.From)
	assert.Equal(t, "Alice", incoming.Name)
	assert.JSONEq(t, string(offer), string(incoming.Signal))

	// Bob answers; the answer is relayed back as call-accepted.
	answer := json.RawMessage(`{"type":"answer","sdp":"bob-answer"}`)
	bob.send(protocol.EventAnswerCall, protocol.AnswerCallPayload{
		Signal: answer,
		To:     aliceID,
	})

	var accepted protocol.CallAcceptedPayload
	alice.expect(protocol.EventCallAccepted, &accepted)
	assert.Equal(t, bobID, accepted.From)
	assert.JSONEq(t, string(answer), string(accepted.Signal))

	// Bob disconnects; Alice is told.
	bob.conn.Close()
	var left protocol.UserLeftPayload
	alice.expect(protocol.EventUserLeft, &left)
	assert.Equal(t, bobID, left.UserID)
}

func TestRelayToDepartedParticipantIsDropped(t *testing.T) {
	srv := newServer(t)

	alice := dial(t, srv)
	aliceID := alice.join("r1", "Alice")

	bob := dial(t, srv)
	bobID := bob.join("r1", "Bob")
	alice.expect(protocol.EventUserJoined, nil)

	bob.conn.Close()
	alice.expect(protocol.EventUserLeft, nil)

	// Stale relay: dropped without an error back to the sender. Carol's
	// join proves it: if an error had been sent it would arrive first.
	alice.send(protocol.EventCallUser, protocol.CallUserPayload{
		UserToCall: bobID,
		SignalData: json.RawMessage(`{"type":"offer","sdp":"x"}`),
		From:       aliceID,
		Name:       "Alice",
	})

	carol := dial(t, srv)
	carol.join("r1", "Carol")
	var joined protocol.UserJoinedPayload
	alice.expectNext(protocol.EventUserJoined, &joined)
	assert.Equal(t, "Carol", joined.UserName)
}

func TestRelayBeforeJoiningIsRejected(t *testing.T) {
	srv := newServer(t)

	conn := dial(t, srv)
	conn.send(protocol.EventCallUser, protocol.CallUserPayload{
		UserToCall: "nobody",
		SignalData: json.RawMessage(`{}`),
	})

	var errPayload protocol.ErrorPayload
	conn.expect(protocol.EventError, &errPayload)
	assert.Contains(t, errPayload.Message, "join a room first")
}

func TestMovingRoomsLeavesTheOldOne(t *testing.T) {
	srv := newServer(t)

	alice := dial(t, srv)
	alice.join("r1", "Alice")

	bob := dial(t, srv)
	bobID := bob.join("r1", "Bob")
	alice.expect(protocol.EventUserJoined, nil)

	// A participant belongs to at most one room at a time.
	bob.join("r2", "Bob")

	var left protocol.UserLeftPayload
	alice.expect(protocol.EventUserLeft, &left)
	assert.Equal(t, bobID, left.UserID)
}

func TestThreePartyRoomIntroductions(t *testing.T) {
	srv := newServer(t)

	alice := dial(t, srv)
	alice.join("mesh", "Alice")

	bob := dial(t, srv)
	bobID := bob.join("mesh", "Bob")
	alice.expect(protocol.EventUserJoined, nil)

	carol := dial(t, srv)
	carolID := carol.join("mesh", "Carol")

	// Both existing members learn about Carol independently.
	var fromAlice, fromBob protocol.UserJoinedPayload
	alice.expect(protocol.EventUserJoined, &fromAlice)
	bob.expect(protocol.EventUserJoined, &fromBob)
	assert.Equal(t, carolID, fromAlice.UserID)
	assert.Equal(t, carolID, fromBob.UserID)
	_ = bobID
}
