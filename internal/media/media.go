// Package media provides the local capture capability: acquiring
// camera/microphone tracks and sharing them read-only across every peer
// link. There is exactly one enabled flag per media kind, global to the
// local participant; toggling it is observed by all links at once.
package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

var (
	// ErrPermissionDenied means the OS refused access to the device.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrDeviceUnavailable means no usable camera/microphone was found.
	ErrDeviceUnavailable = errors.New("media device unavailable")
)

// Kind distinguishes audio from video tracks.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Constraints selects which kinds of media to acquire.
type Constraints struct {
	Video bool
	Audio bool
}

// Capture acquires local media. Acquisition can block on a user permission
// gate, so it takes a context and must abort when the context is cancelled.
type Capture interface {
	Acquire(ctx context.Context, c Constraints) (*Stream, error)
}

// Track is one local media track. All peer links subscribe to the same
// Track; none of them owns it. Writes are silently skipped while the track
// is disabled, which is what makes a mute toggle take effect on every link
// simultaneously.
type Track struct {
	kind    Kind
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
}

func newTrack(kind Kind, local *webrtc.TrackLocalStaticSample) *Track {
	t := &Track{kind: kind, local: local}
	t.enabled.Store(true)
	return t
}

func (t *Track) Kind() Kind { return t.kind }

// Enabled reports the shared mute/video-off flag for this track.
func (t *Track) Enabled() bool { return t.enabled.Load() }

// Local exposes the underlying sample track for attaching to a peer
// connection.
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }

// WriteSample forwards one captured sample to every subscribed link.
// Disabled tracks drop samples instead of stopping the capture pipeline, so
// re-enabling resumes instantly.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// Stream is the local participant's captured media: at most one audio and
// one video track plus the handle that releases the capture hardware.
type Stream struct {
	tracks  []*Track
	release func()
	once    sync.Once
}

// NewStream bundles tracks with a release hook. release stops the capture
// pipelines and frees the hardware handles; it runs at most once.
func NewStream(tracks []*Track, release func()) *Stream {
	return &Stream{tracks: tracks, release: release}
}

// Tracks returns the shared local tracks.
func (s *Stream) Tracks() []*Track { return s.tracks }

func (s *Stream) track(kind Kind) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// SetEnabled flips the single shared flag for one media kind. No-op when
// the stream has no track of that kind.
func (s *Stream) SetEnabled(kind Kind, enabled bool) {
	if t := s.track(kind); t != nil {
		t.enabled.Store(enabled)
	}
}

// Enabled reports the shared flag for one media kind. Streams without a
// track of that kind report false.
func (s *Stream) Enabled(kind Kind) bool {
	if t := s.track(kind); t != nil {
		return t.enabled.Load()
	}
	return false
}

// Close releases the capture hardware. Idempotent; every exit path of a
// call session is expected to reach it.
func (s *Stream) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
