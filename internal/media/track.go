package media

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Track is one local media track. Disabling a track does not stop it:
// the track keeps flowing through existing peer connections, it just
// carries silence or black frames.
type Track interface {
	Local() webrtc.TrackLocal
	Kind() webrtc.RTPCodecType
	SetEnabled(enabled bool)
	Enabled() bool
	Stop()
}

const (
	audioFrameInterval = 20 * time.Millisecond
	videoFrameInterval = 33 * time.Millisecond
)

// opusSilence is a single silent opus frame (TOC byte + DTX payload).
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// sampleTrack feeds a TrackLocalStaticSample from a frame generator
// goroutine. It backs both the synthetic source and, behind the same
// interface, device captures that decode into raw samples.
type sampleTrack struct {
	local    *webrtc.TrackLocalStaticSample
	kind     webrtc.RTPCodecType
	interval time.Duration

	enabled atomic.Bool

	frame   func(enabled bool) []byte
	done    chan struct{}
	stopOne sync.Once
}

func newSampleTrack(id, streamID string, codec webrtc.RTPCodecCapability, kind webrtc.RTPCodecType, interval time.Duration, frame func(enabled bool) []byte) (*sampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, NewError("create local track", err)
	}

	t := &sampleTrack{
		local:    local,
		kind:     kind,
		interval: interval,
		frame:    frame,
		done:     make(chan struct{}),
	}
	t.enabled.Store(true)

	go t.pump()
	return t, nil
}

// pump writes one sample per frame interval until the track is stopped.
func (t *sampleTrack) pump() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			sample := pionmedia.Sample{
				Data:     t.frame(t.enabled.Load()),
				Duration: t.interval,
			}
			if err := t.local.WriteSample(sample); err != nil {
				return
			}
		}
	}
}

func (t *sampleTrack) Local() webrtc.TrackLocal    { return t.local }
func (t *sampleTrack) Kind() webrtc.RTPCodecType   { return t.kind }
func (t *sampleTrack) SetEnabled(enabled bool)     { t.enabled.Store(enabled) }
func (t *sampleTrack) Enabled() bool               { return t.enabled.Load() }

func (t *sampleTrack) Stop() {
	t.stopOne.Do(func() {
		close(t.done)
	})
}
