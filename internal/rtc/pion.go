package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/mindmesh/roomcall/internal/version"
)

// ErrControlClosed is returned by SendControl while the control channel is
// not open. Callers treat it as advisory; control traffic is best-effort.
var ErrControlClosed = errors.New("control channel not open")

const controlChannelLabel = "roomcall-ctl"

// PionEngine implements Engine on pion/webrtc with trickle disabled: each
// side emits exactly one signal payload, after ICE gathering completes.
type PionEngine struct {
	ICEServers []webrtc.ICEServer
	ForceRelay bool
	Log        zerolog.Logger
}

func NewPionEngine(iceServers []webrtc.ICEServer, forceRelay bool, log zerolog.Logger) *PionEngine {
	return &PionEngine{ICEServers: iceServers, ForceRelay: forceRelay, Log: log}
}

func (e *PionEngine) NewSession(cfg SessionConfig) (Session, error) {
	policy := webrtc.ICETransportPolicyAll
	if e.ForceRelay {
		policy = webrtc.ICETransportPolicyRelay
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers:         e.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &pionSession{
		pc:     pc,
		cfg:    cfg,
		remote: &RemoteStream{},
		log:    e.Log.With().Bool("initiator", cfg.Initiator).Logger(),
	}

	if cfg.Stream != nil {
		for _, track := range cfg.Stream.Tracks() {
			if _, err := pc.AddTrack(track.Local()); err != nil {
				pc.Close()
				return nil, fmt.Errorf("add %s track: %w", track.Kind(), err)
			}
		}
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.log.Debug().Str("kind", track.Kind().String()).Msg("remote track arrived")
		s.remote.add(track)
		s.fireStream()

		// Drain the track so the interceptor chain keeps running even
		// though the CLI never renders it.
		go func() {
			for {
				if _, _, err := track.ReadRTP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.log.Debug().Str("state", state.String()).Msg("connection state")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			// Covers peers that negotiated without sending media.
			s.fireStream()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if !s.closed.Load() {
				s.fail(fmt.Errorf("%w: transport %s", ErrNegotiationFailed, state))
			}
		}
	})

	if cfg.Initiator {
		ctl, err := pc.CreateDataChannel(controlChannelLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create control channel: %w", err)
		}
		s.bindControl(ctl)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if dc.Label() == controlChannelLabel {
				s.bindControl(dc)
			}
		})
	}

	return s, nil
}

type pionSession struct {
	pc  *webrtc.PeerConnection
	cfg SessionConfig
	log zerolog.Logger

	mu        sync.Mutex
	onSignal  func(json.RawMessage)
	onStream  func(*RemoteStream)
	onControl func(ControlMessage)
	onFailure func(error)
	ctl       *webrtc.DataChannel

	remote     *RemoteStream
	streamOnce sync.Once
	failOnce   sync.Once
	closeOnce  sync.Once
	closed     atomic.Bool
}

func (s *pionSession) OnSignal(fn func(json.RawMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSignal = fn
}

func (s *pionSession) OnStream(fn func(*RemoteStream)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStream = fn
}

func (s *pionSession) OnControl(fn func(ControlMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onControl = fn
}

func (s *pionSession) OnFailure(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = fn
}

// Start kicks off negotiation. For the initiator this produces the offer;
// the responder's negotiation begins when the offer arrives via Signal.
func (s *pionSession) Start() error {
	if !s.cfg.Initiator {
		return nil
	}
	go func() {
		offer, err := s.pc.CreateOffer(nil)
		if err != nil {
			s.fail(fmt.Errorf("%w: create offer: %v", ErrNegotiationFailed, err))
			return
		}
		s.emitLocalDescription(offer)
	}()
	return nil
}

// Signal feeds one remote payload in. For the responder the first payload
// is the offer and triggers answer production; for the initiator the only
// payload is the answer.
func (s *pionSession) Signal(payload json.RawMessage) error {
	if s.closed.Load() {
		return nil
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("parse signal payload: %w", err)
	}

	if err := s.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	if desc.Type == webrtc.SDPTypeOffer {
		go func() {
			answer, err := s.pc.CreateAnswer(nil)
			if err != nil {
				s.fail(fmt.Errorf("%w: create answer: %v", ErrNegotiationFailed, err))
				return
			}
			s.emitLocalDescription(answer)
		}()
	}
	return nil
}

// emitLocalDescription applies desc and emits the complete local payload
// once ICE gathering finishes. One payload per direction, trickle off.
func (s *pionSession) emitLocalDescription(desc webrtc.SessionDescription) {
	gathered := webrtc.GatheringCompletePromise(s.pc)

	if err := s.pc.SetLocalDescription(desc); err != nil {
		s.fail(fmt.Errorf("%w: set local description: %v", ErrNegotiationFailed, err))
		return
	}

	<-gathered
	if s.closed.Load() {
		return
	}

	local := s.pc.LocalDescription()
	payload, err := json.Marshal(local)
	if err != nil {
		s.fail(fmt.Errorf("%w: marshal local description: %v", ErrNegotiationFailed, err))
		return
	}

	s.mu.Lock()
	fn := s.onSignal
	s.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

func (s *pionSession) bindControl(dc *webrtc.DataChannel) {
	s.mu.Lock()
	s.ctl = dc
	s.mu.Unlock()

	dc.OnOpen(func() {
		hello, err := NewControlMessage(ControlTypeHello, HelloPayload{
			Name:    s.cfg.DisplayName,
			Version: version.Version,
		})
		if err == nil {
			s.SendControl(hello)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		ctl, err := DecodeControl(msg.Data)
		if err != nil {
			s.log.Debug().Err(err).Msg("dropping malformed control message")
			return
		}
		s.mu.Lock()
		fn := s.onControl
		s.mu.Unlock()
		if fn != nil {
			fn(ctl)
		}
	})
}

func (s *pionSession) SendControl(msg ControlMessage) error {
	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()

	if ctl == nil || ctl.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrControlClosed
	}

	data, err := EncodeControl(msg)
	if err != nil {
		return err
	}
	return ctl.Send(data)
}

func (s *pionSession) fireStream() {
	s.streamOnce.Do(func() {
		s.mu.Lock()
		fn := s.onStream
		s.mu.Unlock()
		if fn != nil {
			fn(s.remote)
		}
	})
}

func (s *pionSession) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		fn := s.onFailure
		s.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	})
}

// Close releases the peer connection. Idempotent.
func (s *pionSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.pc.Close()
	})
	return err
}
