package media

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Constraints describe the capture the caller wants. Zero values fall
// back to sane defaults.
type Constraints struct {
	Audio     bool
	Video     bool
	Width     int
	Height    int
	FrameRate int
}

// DefaultConstraints requests both microphone and camera.
func DefaultConstraints() Constraints {
	return Constraints{Audio: true, Video: true, Width: 640, Height: 480, FrameRate: 30}
}

// Source opens local capture tracks. The synthetic source below keeps the
// client runnable headless; device-backed sources implement the same
// interface.
type Source interface {
	OpenMicrophone(streamID string) (Track, error)
	OpenCamera(streamID string, c Constraints) (Track, error)
	OpenScreen(streamID string) (Track, error)
}

// SyntheticSource generates silence and solid frames in place of real
// devices. Only one screen capture may be open at a time.
type SyntheticSource struct {
	mu         sync.Mutex
	screenOpen bool
}

func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{}
}

func (s *SyntheticSource) OpenMicrophone(streamID string) (Track, error) {
	return newSampleTrack(
		"audio-"+uuid.NewString(),
		streamID,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		webrtc.RTPCodecTypeAudio,
		audioFrameInterval,
		func(bool) []byte {
			// a muted mic and a silent room look the same on the wire
			return opusSilence
		},
	)
}

func (s *SyntheticSource) OpenCamera(streamID string, c Constraints) (Track, error) {
	return newSampleTrack(
		"video-"+uuid.NewString(),
		streamID,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		webrtc.RTPCodecTypeVideo,
		videoFrameInterval,
		syntheticFrame,
	)
}

func (s *SyntheticSource) OpenScreen(streamID string) (Track, error) {
	s.mu.Lock()
	if s.screenOpen {
		s.mu.Unlock()
		return nil, NewError("open screen", ErrScreenShareBusy)
	}
	s.screenOpen = true
	s.mu.Unlock()

	t, err := newSampleTrack(
		"screen-"+uuid.NewString(),
		streamID,
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		webrtc.RTPCodecTypeVideo,
		videoFrameInterval,
		syntheticFrame,
	)
	if err != nil {
		s.release()
		return nil, err
	}
	return &screenTrack{sampleTrack: t, release: s.release}, nil
}

func (s *SyntheticSource) release() {
	s.mu.Lock()
	s.screenOpen = false
	s.mu.Unlock()
}

// screenTrack returns the screen slot to the source when stopped.
type screenTrack struct {
	*sampleTrack
	release func()
	once    sync.Once
}

func (t *screenTrack) Stop() {
	t.once.Do(t.release)
	t.sampleTrack.Stop()
}

// syntheticFrame emits a minimal VP8 payload; a disabled track emits the
// same shape so receivers keep decoding black frames.
func syntheticFrame(bool) []byte {
	return []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
}
