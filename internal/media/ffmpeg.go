package media

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

const (
	captureWidth     = 640
	captureHeight    = 480
	captureFrameRate = 30

	ivfFileHeaderSize  = 32
	ivfFrameHeaderSize = 12
)

// opusSilence is a single canonical silent Opus frame.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// FFmpegCapture acquires the local camera through an ffmpeg child process
// that encodes VP8 into an IVF stream on stdout; audio is a silent Opus
// feed that keeps the negotiated audio m-line alive. Mirrors how the
// hardware relay in the original deployments captured frames.
type FFmpegCapture struct {
	// Device overrides the default camera input for the platform.
	Device string

	Log zerolog.Logger
}

func (f *FFmpegCapture) device() string {
	if f.Device != "" {
		return f.Device
	}
	if runtime.GOOS == "darwin" {
		return "0"
	}
	return "/dev/video0"
}

func (f *FFmpegCapture) inputFormat() string {
	if runtime.GOOS == "darwin" {
		return "avfoundation"
	}
	return "v4l2"
}

// Acquire starts the capture pipelines and returns the shared stream.
// Cancelling ctx while ffmpeg is starting aborts the acquisition.
func (f *FFmpegCapture) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	var tracks []*Track

	captureCtx, cancel := context.WithCancel(context.Background())

	if c.Video {
		if _, err := exec.LookPath("ffmpeg"); err != nil {
			cancel()
			return nil, fmt.Errorf("%w: ffmpeg not found", ErrDeviceUnavailable)
		}

		local, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video", "roomcall-video",
		)
		if err != nil {
			cancel()
			return nil, err
		}
		track := newTrack(KindVideo, local)

		if err := f.startVideo(ctx, captureCtx, track); err != nil {
			cancel()
			return nil, err
		}
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
		go streamSilence(captureCtx, track)
		tracks = append(tracks, track)
	}

	return NewStream(tracks, cancel), nil
}

func (f *FFmpegCapture) startVideo(ctx, captureCtx context.Context, track *Track) error {
	cmd := exec.CommandContext(captureCtx, "ffmpeg",
		"-f", f.inputFormat(),
		"-video_size", fmt.Sprintf("%dx%d", captureWidth, captureHeight),
		"-framerate", fmt.Sprintf("%d", captureFrameRate),
		"-i", f.device(),
		"-c:v", "libvpx",
		"-b:v", "500k",
		"-f", "ivf",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	// ffmpeg reports device errors on stderr before exiting; watch the
	// first lines to classify permission problems distinctly.
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			lower := strings.ToLower(line)
			switch {
			case strings.Contains(lower, "not permitted") || strings.Contains(lower, "not authorized") || strings.Contains(lower, "permission denied"):
				errCh <- fmt.Errorf("%w: %s", ErrPermissionDenied, line)
				return
			case strings.Contains(lower, "no such file") || strings.Contains(lower, "device or resource busy") || strings.Contains(lower, "input/output error"):
				errCh <- fmt.Errorf("%w: %s", ErrDeviceUnavailable, line)
				return
			}
		}
	}()

	// The IVF file header is the readiness signal: once it arrives the
	// device is open and frames are flowing.
	ready := make(chan error, 1)
	go func() {
		header := make([]byte, ivfFileHeaderSize)
		if _, err := io.ReadFull(stdout, header); err != nil {
			ready <- fmt.Errorf("%w: capture ended before first frame", ErrDeviceUnavailable)
			return
		}
		ready <- nil
		f.pumpFrames(stdout, track)
	}()

	go func() {
		cmd.Wait()
	}()

	select {
	case err := <-errCh:
		return err
	case err := <-ready:
		if err != nil {
			select {
			case devErr := <-errCh:
				return devErr
			default:
			}
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pumpFrames reads IVF frames off the ffmpeg stdout and writes them into
// the shared track until the stream ends.
func (f *FFmpegCapture) pumpFrames(r io.Reader, track *Track) {
	frameDuration := time.Second / captureFrameRate
	header := make([]byte, ivfFrameHeaderSize)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			f.Log.Debug().Err(err).Msg("video capture ended")
			return
		}

		size := binary.LittleEndian.Uint32(header[:4])
		frame := make([]byte, size)
		if _, err := io.ReadFull(r, frame); err != nil {
			f.Log.Debug().Err(err).Msg("video capture truncated")
			return
		}

		if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: frameDuration}); err != nil {
			f.Log.Debug().Err(err).Msg("dropping video sample")
		}
	}
}

// streamSilence feeds 20ms silent Opus frames into the audio track.
func streamSilence(ctx context.Context, track *Track) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: 20 * time.Millisecond})
		}
	}
}
