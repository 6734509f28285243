package rtc

import "github.com/vmihailenco/msgpack/v5"

// Control messages ride a side data channel per link, msgpack-encoded.
// Media semantics never depend on them; they only carry presence niceties
// (who is on the other end, whether they muted themselves).
const (
	ControlTypeHello     = "hello"
	ControlTypeMuteState = "mute_state"
)

// ControlMessage is the envelope for all control-channel traffic.
type ControlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload introduces the local participant once the channel opens.
type HelloPayload struct {
	Name    string `msgpack:"name"`
	Version string `msgpack:"version"`
}

// MuteStatePayload announces the sender's shared per-kind enable flags.
type MuteStatePayload struct {
	AudioEnabled bool `msgpack:"audioEnabled"`
	VideoEnabled bool `msgpack:"videoEnabled"`
}

// NewControlMessage creates a control message with the given payload.
func NewControlMessage(t string, payload any) (ControlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return ControlMessage{}, err
	}
	return ControlMessage{Type: t, Payload: b}, nil
}

// DecodePayload decodes the message payload into the provided struct.
func (m ControlMessage) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// EncodeControl serializes a control message for the wire.
func EncodeControl(m ControlMessage) ([]byte, error) {
	return msgpack.Marshal(m)
}

// DecodeControl parses a control message off the wire.
func DecodeControl(data []byte) (ControlMessage, error) {
	var m ControlMessage
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return ControlMessage{}, err
	}
	return m, nil
}
