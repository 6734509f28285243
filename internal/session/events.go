package session

// EventKind classifies session notifications delivered to observers.
type EventKind int

const (
	// EventPeerJoined: a link was created for a newly discovered remote.
	EventPeerJoined EventKind = iota

	// EventPeerConnected: the link reached Connected with a remote stream.
	EventPeerConnected

	// EventPeerLeft: the remote left the room; its link is gone.
	EventPeerLeft

	// EventPeerFailed: negotiation failed or timed out for one link; other
	// links are unaffected.
	EventPeerFailed

	// EventPeerMuteChanged: the remote toggled its shared audio/video flag.
	EventPeerMuteChanged

	// EventServerError: the signaling server rejected a request.
	EventServerError

	// EventChannelLost: the signaling channel dropped; every link has been
	// force-closed and the session is over.
	EventChannelLost
)

func (k EventKind) String() string {
	switch k {
	case EventPeerJoined:
		return "peer-joined"
	case EventPeerConnected:
		return "peer-connected"
	case EventPeerLeft:
		return "peer-left"
	case EventPeerFailed:
		return "peer-failed"
	case EventPeerMuteChanged:
		return "peer-mute-changed"
	case EventServerError:
		return "server-error"
	case EventChannelLost:
		return "channel-lost"
	default:
		return "unknown"
	}
}

// Event is one observer notification. The peer map itself is owned by the
// Manager; observers see changes only through these.
type Event struct {
	Kind       EventKind
	RemoteID   string
	RemoteName string
	Err        error
	Message    string

	// Remote shared flags, valid for EventPeerMuteChanged.
	AudioEnabled bool
	VideoEnabled bool
}

// Peer is a point-in-time view of one link, exposed by Manager.Snapshot.
type Peer struct {
	ID           string
	Name         string
	Role         Role
	State        State
	AudioEnabled bool
	VideoEnabled bool
}
