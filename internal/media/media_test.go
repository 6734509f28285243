package media

import (
	"context"
	"testing"
	"time"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedEnableFlagPerKind(t *testing.T) {
	stream, err := SyntheticCapture{}.Acquire(context.Background(), Constraints{Video: true, Audio: true})
	require.NoError(t, err)
	defer stream.Close()

	require.Len(t, stream.Tracks(), 2)
	assert.True(t, stream.Enabled(KindAudio))
	assert.True(t, stream.Enabled(KindVideo))

	stream.SetEnabled(KindAudio, false)

	assert.False(t, stream.Enabled(KindAudio))
	assert.True(t, stream.Enabled(KindVideo), "muting audio must not touch video")

	// The flag lives on the shared track itself, so every subscriber of
	// the track observes the same state.
	for _, track := range stream.Tracks() {
		if track.Kind() == KindAudio {
			assert.False(t, track.Enabled())
		}
	}

	stream.SetEnabled(KindAudio, true)
	assert.True(t, stream.Enabled(KindAudio))
}

func TestAudioOnlyStream(t *testing.T) {
	stream, err := SyntheticCapture{}.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)
	defer stream.Close()

	require.Len(t, stream.Tracks(), 1)
	assert.Equal(t, KindAudio, stream.Tracks()[0].Kind())

	// Toggling a kind the stream does not carry is a no-op.
	stream.SetEnabled(KindVideo, false)
	assert.False(t, stream.Enabled(KindVideo))
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	released := 0
	stream := NewStream(nil, func() { released++ })

	stream.Close()
	stream.Close()

	assert.Equal(t, 1, released)
}

func TestDisabledTrackDropsSamples(t *testing.T) {
	stream, err := SyntheticCapture{}.Acquire(context.Background(), Constraints{Video: true})
	require.NoError(t, err)
	defer stream.Close()

	track := stream.Tracks()[0]
	track.enabled.Store(false)

	// An unbound pion track accepts writes; the disabled gate must short
	// circuit before reaching it either way.
	assert.NoError(t, track.WriteSample(pionmedia.Sample{Data: []byte{0x01}, Duration: time.Millisecond}))
}
