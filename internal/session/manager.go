// Package session owns the client-side call state: one peer link per
// remote participant, driven by room membership events and negotiation
// payloads off the signaling channel. All link state lives in a single map
// mutated only from the Manager's run loop; observers get change
// notifications through an event channel.
package session

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/media"
	"github.com/mindmesh/roomcall/internal/protocol"
	"github.com/mindmesh/roomcall/internal/rtc"
	"github.com/mindmesh/roomcall/internal/sigclient"
)

// DefaultNegotiationTimeout bounds how long a link may sit in Negotiating
// before it is closed as failed. The original design waited forever.
const DefaultNegotiationTimeout = 30 * time.Second

// Sender is the outbound half of the signaling channel.
type Sender interface {
	Send(event string, payload any) error
}

// Config assembles a Manager's collaborators.
type Config struct {
	// LocalID is the server-assigned participant id from the join ack.
	LocalID string

	// LocalName is the display name announced to peers.
	LocalName string

	Engine rtc.Engine
	Stream *media.Stream
	Sender Sender
	Inbox  *sigclient.Handler

	// NegotiationTimeout defaults to DefaultNegotiationTimeout when zero.
	NegotiationTimeout time.Duration

	Log zerolog.Logger
}

type adapterEventKind int

const (
	adapterSignal adapterEventKind = iota
	adapterStream
	adapterControl
	adapterFailure
	adapterTimeout
)

// adapterEvent funnels adapter callbacks (which fire on transport
// goroutines) into the run loop. sess identifies the adapter that posted
// the event: the link under remoteID may have been replaced since (glare
// yield), and a dead adapter's payloads must not reach its replacement.
type adapterEvent struct {
	kind     adapterEventKind
	remoteID string
	sess     rtc.Session
	payload  json.RawMessage
	stream   *rtc.RemoteStream
	control  rtc.ControlMessage
	err      error
}

type commandKind int

const (
	cmdSetAudio commandKind = iota
	cmdSetVideo
	cmdSnapshot
	cmdClose
)

type command struct {
	kind    commandKind
	enabled bool
	reply   chan []Peer
}

// Manager maintains the remote-participant → peer-link mapping for the
// local participant and reacts to membership and negotiation events.
type Manager struct {
	localID   string
	localName string
	engine    rtc.Engine
	stream    *media.Stream
	sender    Sender
	inbox     *sigclient.Handler
	timeout   time.Duration
	log       zerolog.Logger

	links map[string]*Link

	adapterEvents chan adapterEvent
	commands      chan command
	events        chan Event

	// finished is closed when Run returns; external calls select against
	// it so they never block on a dead loop.
	finished chan struct{}
}

func NewManager(cfg Config) *Manager {
	timeout := cfg.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	return &Manager{
		localID:       cfg.LocalID,
		localName:     cfg.LocalName,
		engine:        cfg.Engine,
		stream:        cfg.Stream,
		sender:        cfg.Sender,
		inbox:         cfg.Inbox,
		timeout:       timeout,
		log:           cfg.Log.With().Str("local_id", cfg.LocalID).Logger(),
		links:         make(map[string]*Link),
		adapterEvents: make(chan adapterEvent, 64),
		commands:      make(chan command),
		events:        make(chan Event, 64),
		finished:      make(chan struct{}),
	}
}

// Events is the observer stream. Slow observers lose events rather than
// stalling the run loop.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Run drives the session until the channel is lost or Close is called.
// Every exit path tears down all links and releases the local stream.
func (m *Manager) Run() {
	defer close(m.finished)
	defer m.shutdown()

	for {
		select {
		case p := <-m.inbox.UserJoined:
			m.onUserJoined(p.UserID, p.UserName)

		case p := <-m.inbox.IncomingCall:
			m.onIncomingCall(p.From, p.Name, p.Signal)

		case p := <-m.inbox.CallAccepted:
			m.onCallAccepted(p.From, p.Signal)

		case p := <-m.inbox.UserLeft:
			m.onUserLeft(p.UserID)

		case msg := <-m.inbox.Errors:
			m.log.Warn().Str("message", msg).Msg("server error")
			m.emit(Event{Kind: EventServerError, Message: msg})

		case <-m.inbox.Lost:
			m.log.Warn().Msg("signaling channel lost, ending session")
			m.emit(Event{Kind: EventChannelLost, Err: ErrChannelLost})
			return

		case ev := <-m.adapterEvents:
			m.onAdapterEvent(ev)

		case cmd := <-m.commands:
			if m.onCommand(cmd) {
				return
			}
		}
	}
}

// Close ends the session. Safe to call from any goroutine, any number of
// times, including after Run has already returned.
func (m *Manager) Close() {
	select {
	case m.commands <- command{kind: cmdClose}:
	case <-m.finished:
	}
}

// SetAudioEnabled flips the one shared audio flag and announces the new
// state to every connected peer.
func (m *Manager) SetAudioEnabled(enabled bool) {
	select {
	case m.commands <- command{kind: cmdSetAudio, enabled: enabled}:
	case <-m.finished:
	}
}

// SetVideoEnabled flips the one shared video flag and announces the new
// state to every connected peer.
func (m *Manager) SetVideoEnabled(enabled bool) {
	select {
	case m.commands <- command{kind: cmdSetVideo, enabled: enabled}:
	case <-m.finished:
	}
}

// Snapshot returns a point-in-time view of the live links. Returns nil
// after the session has ended.
func (m *Manager) Snapshot() []Peer {
	reply := make(chan []Peer, 1)
	select {
	case m.commands <- command{kind: cmdSnapshot, reply: reply}:
		return <-reply
	case <-m.finished:
		return nil
	}
}

// onUserJoined handles a membership announcement: the local side takes the
// initiator role toward the newcomer. A remote we already track is left
// alone; that happens when its incoming call beat the membership event.
func (m *Manager) onUserJoined(remoteID, remoteName string) {
	if _, ok := m.links[remoteID]; ok {
		m.log.Debug().Str("remote_id", remoteID).Msg("already tracking remote, ignoring user-joined")
		return
	}

	link, err := m.createLink(remoteID, remoteName, RoleInitiator)
	if err != nil {
		m.log.Error().Err(err).Str("remote_id", remoteID).Msg("failed to create initiator link")
		m.emit(Event{Kind: EventPeerFailed, RemoteID: remoteID, RemoteName: remoteName, Err: err})
		return
	}

	m.links[remoteID] = link
	m.emit(Event{Kind: EventPeerJoined, RemoteID: remoteID, RemoteName: remoteName})

	if err := link.sess.Start(); err != nil {
		m.closeLink(remoteID, EventPeerFailed, newPeerError("start negotiation", remoteID, err))
	}
}

// onIncomingCall handles a relayed offer. Normally the remote is new and
// the local side becomes responder. If a link already exists both sides
// initiated at once; the tie-break keeps the initiator attempt of the
// participant with the smaller id and turns the other side into the
// responder, so exactly one link per pair survives on each side.
func (m *Manager) onIncomingCall(remoteID, remoteName string, signal json.RawMessage) {
	if existing, ok := m.links[remoteID]; ok {
		if m.localID < remoteID {
			m.log.Debug().
				Str("remote_id", remoteID).
				Msg("glare: keeping initiator role, discarding incoming call")
			return
		}
		m.log.Debug().
			Str("remote_id", remoteID).
			Msg("glare: yielding initiator role to remote")
		existing.close()
		delete(m.links, remoteID)
	}

	link, err := m.createLink(remoteID, remoteName, RoleResponder)
	if err != nil {
		m.log.Error().Err(err).Str("remote_id", remoteID).Msg("failed to create responder link")
		m.emit(Event{Kind: EventPeerFailed, RemoteID: remoteID, RemoteName: remoteName, Err: err})
		return
	}

	m.links[remoteID] = link
	m.emit(Event{Kind: EventPeerJoined, RemoteID: remoteID, RemoteName: remoteName})

	link.transition(StateNegotiating)
	if err := link.sess.Signal(signal); err != nil {
		m.closeLink(remoteID, EventPeerFailed, newPeerError("consume offer", remoteID, err))
	}
}

// onCallAccepted feeds the remote answer into the initiator link. Answers
// from peers no longer tracked are stale relays and dropped silently.
func (m *Manager) onCallAccepted(remoteID string, signal json.RawMessage) {
	link, ok := m.links[remoteID]
	if !ok {
		m.log.Debug().Str("remote_id", remoteID).Msg("stale call-accepted, dropping")
		return
	}
	if link.Role != RoleInitiator {
		m.log.Debug().Str("remote_id", remoteID).Msg("call-accepted on responder link, dropping")
		return
	}

	if err := link.sess.Signal(signal); err != nil {
		m.closeLink(remoteID, EventPeerFailed, newPeerError("consume answer", remoteID, err))
	}
}

// onUserLeft destroys the link for a departed remote. Idempotent: a
// departure for an untracked remote is a no-op.
func (m *Manager) onUserLeft(remoteID string) {
	m.closeLink(remoteID, EventPeerLeft, nil)
}

func (m *Manager) onAdapterEvent(ev adapterEvent) {
	link, ok := m.links[ev.remoteID]
	if !ok {
		// The link was closed between the callback firing and the event
		// draining. Nothing to do.
		return
	}
	if link.sess != ev.sess {
		// The link was replaced (glare yield) after the old adapter posted
		// this event. An in-flight offer from the abandoned initiator must
		// not leave as the new link's answer.
		m.log.Debug().Str("remote_id", ev.remoteID).Msg("dropping event from replaced adapter")
		return
	}

	switch ev.kind {
	case adapterSignal:
		link.transition(StateNegotiating)
		m.sendSignal(link, ev.payload)

	case adapterStream:
		if !link.transition(StateConnected) {
			return
		}
		if link.timer != nil {
			link.timer.Stop()
			link.timer = nil
		}
		link.Remote = ev.stream
		m.log.Info().
			Str("remote_id", link.RemoteID).
			Str("name", link.RemoteName).
			Msg("peer connected")
		m.emit(Event{Kind: EventPeerConnected, RemoteID: link.RemoteID, RemoteName: link.RemoteName})
		m.announceMuteState(link)

	case adapterControl:
		m.onControl(link, ev.control)

	case adapterFailure:
		m.closeLink(ev.remoteID, EventPeerFailed, newPeerError("negotiation", ev.remoteID, ev.err))

	case adapterTimeout:
		if link.State() == StateConnected {
			return
		}
		m.closeLink(ev.remoteID, EventPeerFailed, newPeerError("negotiation", ev.remoteID, ErrNegotiationTimeout))
	}
}

func (m *Manager) onControl(link *Link, msg rtc.ControlMessage) {
	switch msg.Type {
	case rtc.ControlTypeHello:
		var p rtc.HelloPayload
		if err := msg.DecodePayload(&p); err != nil {
			return
		}
		if p.Name != "" {
			link.RemoteName = p.Name
		}

	case rtc.ControlTypeMuteState:
		var p rtc.MuteStatePayload
		if err := msg.DecodePayload(&p); err != nil {
			return
		}
		link.remoteAudio = p.AudioEnabled
		link.remoteVideo = p.VideoEnabled
		m.emit(Event{
			Kind:         EventPeerMuteChanged,
			RemoteID:     link.RemoteID,
			RemoteName:   link.RemoteName,
			AudioEnabled: p.AudioEnabled,
			VideoEnabled: p.VideoEnabled,
		})

	default:
		m.log.Debug().Str("type", msg.Type).Msg("unknown control message")
	}
}

func (m *Manager) onCommand(cmd command) (stop bool) {
	switch cmd.kind {
	case cmdSetAudio:
		m.stream.SetEnabled(media.KindAudio, cmd.enabled)
		m.broadcastMuteState()

	case cmdSetVideo:
		m.stream.SetEnabled(media.KindVideo, cmd.enabled)
		m.broadcastMuteState()

	case cmdSnapshot:
		peers := make([]Peer, 0, len(m.links))
		for _, l := range m.links {
			peers = append(peers, Peer{
				ID:           l.RemoteID,
				Name:         l.RemoteName,
				Role:         l.Role,
				State:        l.State(),
				AudioEnabled: l.remoteAudio,
				VideoEnabled: l.remoteVideo,
			})
		}
		cmd.reply <- peers

	case cmdClose:
		return true
	}
	return false
}

// createLink builds a link and its adapter, wiring the adapter callbacks
// into the run loop. The negotiation timer starts immediately.
func (m *Manager) createLink(remoteID, remoteName string, role Role) (*Link, error) {
	sess, err := m.engine.NewSession(rtc.SessionConfig{
		Initiator:   role == RoleInitiator,
		Stream:      m.stream,
		DisplayName: m.localName,
	})
	if err != nil {
		return nil, newPeerError("create adapter", remoteID, err)
	}

	id := remoteID
	sess.OnSignal(func(payload json.RawMessage) {
		m.post(adapterEvent{kind: adapterSignal, remoteID: id, sess: sess, payload: payload})
	})
	sess.OnStream(func(stream *rtc.RemoteStream) {
		m.post(adapterEvent{kind: adapterStream, remoteID: id, sess: sess, stream: stream})
	})
	sess.OnControl(func(msg rtc.ControlMessage) {
		m.post(adapterEvent{kind: adapterControl, remoteID: id, sess: sess, control: msg})
	})
	sess.OnFailure(func(err error) {
		m.post(adapterEvent{kind: adapterFailure, remoteID: id, sess: sess, err: err})
	})

	link := newLink(remoteID, remoteName, role, sess)
	link.timer = time.AfterFunc(m.timeout, func() {
		m.post(adapterEvent{kind: adapterTimeout, remoteID: id, sess: sess})
	})

	m.log.Info().
		Str("remote_id", remoteID).
		Str("name", remoteName).
		Str("role", role.String()).
		Msg("peer link created")

	return link, nil
}

// post delivers an adapter callback into the run loop without ever
// blocking a transport goroutine on a finished session.
func (m *Manager) post(ev adapterEvent) {
	select {
	case m.adapterEvents <- ev:
	case <-m.finished:
	}
}

func (m *Manager) sendSignal(link *Link, payload json.RawMessage) {
	var err error
	if link.Role == RoleInitiator {
		err = m.sender.Send(protocol.EventCallUser, protocol.CallUserPayload{
			UserToCall: link.RemoteID,
			SignalData: payload,
			From:       m.localID,
			Name:       m.localName,
		})
	} else {
		err = m.sender.Send(protocol.EventAnswerCall, protocol.AnswerCallPayload{
			Signal: payload,
			To:     link.RemoteID,
		})
	}
	if err != nil {
		m.closeLink(link.RemoteID, EventPeerFailed, newPeerError("send signal", link.RemoteID, err))
	}
}

// broadcastMuteState tells every connected peer the current shared flags.
// Best-effort; links without an open control channel are skipped.
func (m *Manager) broadcastMuteState() {
	for _, link := range m.links {
		if link.State() == StateConnected {
			m.announceMuteState(link)
		}
	}
}

func (m *Manager) announceMuteState(link *Link) {
	msg, err := rtc.NewControlMessage(rtc.ControlTypeMuteState, rtc.MuteStatePayload{
		AudioEnabled: m.stream.Enabled(media.KindAudio),
		VideoEnabled: m.stream.Enabled(media.KindVideo),
	})
	if err != nil {
		return
	}
	if err := link.sess.SendControl(msg); err != nil {
		m.log.Debug().Err(err).Str("remote_id", link.RemoteID).Msg("mute announce skipped")
	}
}

// closeLink destroys one link and notifies observers. No-op when the
// remote is not tracked, which makes departures and failures idempotent.
func (m *Manager) closeLink(remoteID string, kind EventKind, err error) {
	link, ok := m.links[remoteID]
	if !ok {
		return
	}

	link.close()
	delete(m.links, remoteID)

	m.log.Info().
		Str("remote_id", remoteID).
		Str("name", link.RemoteName).
		Err(err).
		Msg("peer link closed")
	m.emit(Event{Kind: kind, RemoteID: remoteID, RemoteName: link.RemoteName, Err: err})
}

// shutdown force-closes every link and releases the local media. Runs on
// every exit path of Run.
func (m *Manager) shutdown() {
	for id, link := range m.links {
		link.close()
		delete(m.links, id)
	}
	if m.stream != nil {
		m.stream.Close()
	}
	m.log.Info().Msg("session ended")
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		m.log.Debug().Str("kind", ev.Kind.String()).Msg("observer lagging, dropping event")
	}
}
