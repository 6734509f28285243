package signaling

import "github.com/mindmesh/roomcall/internal/protocol"

// Room is a named rendezvous scope. Members are keyed by their
// server-assigned participant id. Rooms are created implicitly by the first
// join and deleted by the hub once the member set is empty.
type Room struct {
	ID      string
	Members map[string]*Client
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: make(map[string]*Client),
	}
}

// BroadcastExcept queues env to every member except the one identified by
// exceptID. Used for user-joined and user-left announcements, which never go
// back to the participant they are about.
func (r *Room) BroadcastExcept(exceptID string, env *protocol.Envelope) {
	for id, member := range r.Members {
		if id == exceptID {
			continue
		}
		member.enqueue(env)
	}
}

// Member returns the member with the given id, or nil.
func (r *Room) Member(id string) *Client {
	return r.Members[id]
}

func (r *Room) Empty() bool {
	return len(r.Members) == 0
}
