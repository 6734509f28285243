package media

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// SyntheticCapture produces placeholder tracks without touching any
// hardware. Used headless (no camera attached) and by tests.
type SyntheticCapture struct{}

func (SyntheticCapture) Acquire(_ context.Context, c Constraints) (*Stream, error) {
	var tracks []*Track

	ctx, cancel := context.WithCancel(context.Background())

	if c.Video {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "roomcall-video",
		)
		if err != nil {
			cancel()
			return nil, err
		}
		track := newTrack(KindVideo, local)
		go streamPlaceholderVideo(ctx, track)
		tracks = append(tracks, track)
	}

	if c.Audio {
		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", "roomcall-audio",
		)
		if err != nil {
			cancel()
			return nil, err
		}
		track := newTrack(KindAudio, local)
		go streamSilence(ctx, track)
		tracks = append(tracks, track)
	}

	return NewStream(tracks, cancel), nil
}

func streamPlaceholderVideo(ctx context.Context, track *Track) {
	ticker := time.NewTicker(time.Second / captureFrameRate)
	defer ticker.Stop()

	// Minimal VP8 keyframe-shaped payload; enough to keep the RTP flow
	// alive for links that never render it.
	frame := make([]byte, 64)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			track.WriteSample(pionmedia.Sample{Data: frame, Duration: time.Second / captureFrameRate})
		}
	}
}
