package rtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlMessageRoundTrip(t *testing.T) {
	msg, err := NewControlMessage(ControlTypeMuteState, MuteStatePayload{
		AudioEnabled: false,
		VideoEnabled: true,
	})
	require.NoError(t, err)

	wire, err := EncodeControl(msg)
	require.NoError(t, err)

	decoded, err := DecodeControl(wire)
	require.NoError(t, err)
	assert.Equal(t, ControlTypeMuteState, decoded.Type)

	var p MuteStatePayload
	require.NoError(t, decoded.DecodePayload(&p))
	assert.False(t, p.AudioEnabled)
	assert.True(t, p.VideoEnabled)
}

func TestDecodeControlRejectsGarbage(t *testing.T) {
	_, err := DecodeControl([]byte("not msgpack at all"))
	assert.Error(t, err)
}
