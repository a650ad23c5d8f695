package media

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// CaptureKind distinguishes the camera/mic handle from the screen handle.
type CaptureKind string

const (
	KindCamera CaptureKind = "camera"
	KindScreen CaptureKind = "screen"
)

// Capture is one live capture handle: the camera/mic pair, or a screen.
type Capture struct {
	ID    string
	Kind  CaptureKind
	Audio Track
	Video Track
}

// Tracks returns the non-nil tracks of the handle.
func (c *Capture) Tracks() []Track {
	var out []Track
	if c.Audio != nil {
		out = append(out, c.Audio)
	}
	if c.Video != nil {
		out = append(out, c.Video)
	}
	return out
}

// Close stops every track of the handle. Safe to call repeatedly.
func (c *Capture) Close() {
	for _, t := range c.Tracks() {
		t.Stop()
	}
}

// Controller owns the local capture lifecycle: at most one camera/mic
// handle and at most one screen handle at a time.
//
// Consumers must never cache the capture or its tracks across async
// boundaries; they read through Live/OutboundAudioTrack/OutboundVideoTrack
// at the moment of use so a re-acquired stream is always the one attached.
type Controller struct {
	mu     sync.Mutex
	source Source
	camera *Capture
	screen *Capture

	onScreenShareEnded func()
}

func NewController(source Source) *Controller {
	return &Controller{source: source}
}

// Acquire opens the camera/mic capture. Calling it while a handle is live
// returns the existing handle.
func (c *Controller) Acquire(cs Constraints) (*Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.camera != nil {
		return c.camera, nil
	}

	cap := &Capture{ID: uuid.NewString(), Kind: KindCamera}

	if cs.Audio {
		audio, err := c.source.OpenMicrophone(cap.ID)
		if err != nil {
			return nil, err
		}
		cap.Audio = audio
	}
	if cs.Video {
		video, err := c.source.OpenCamera(cap.ID, cs)
		if err != nil {
			cap.Close()
			return nil, err
		}
		cap.Video = video
	}

	c.camera = cap
	return cap, nil
}

// Live returns the current camera/mic handle, or nil when none is
// acquired. This is the indirection every connection-setup step reads
// through instead of capturing a handle at construction time.
func (c *Controller) Live() *Capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera
}

// OutboundAudioTrack returns the track currently feeding outbound audio.
func (c *Controller) OutboundAudioTrack() Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.camera == nil {
		return nil
	}
	return c.camera.Audio
}

// OutboundVideoTrack returns the track currently feeding outbound video:
// the screen track while sharing, the camera track otherwise.
func (c *Controller) OutboundVideoTrack() Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != nil && c.screen.Video != nil {
		return c.screen.Video
	}
	if c.camera == nil {
		return nil
	}
	return c.camera.Video
}

// ToggleAudio flips the enabled state of the mic track in place. No new
// stream is created and no peer connection renegotiates.
func (c *Controller) ToggleAudio(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.camera == nil || c.camera.Audio == nil {
		return
	}
	c.camera.Audio.SetEnabled(enabled)
}

// ToggleVideo flips the enabled state of the camera track in place.
func (c *Controller) ToggleVideo(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.camera == nil || c.camera.Video == nil {
		return
	}
	c.camera.Video.SetEnabled(enabled)
}

// StartScreenShare acquires the independent screen capture handle.
// Calling it while a share is active returns the existing handle.
func (c *Controller) StartScreenShare() (*Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.screen != nil {
		return c.screen, nil
	}

	id := uuid.NewString()
	video, err := c.source.OpenScreen(id)
	if err != nil {
		return nil, err
	}

	c.screen = &Capture{ID: id, Kind: KindScreen, Video: video}
	return c.screen, nil
}

// StopScreenShare releases the screen handle.
func (c *Controller) StopScreenShare() {
	c.mu.Lock()
	screen := c.screen
	c.screen = nil
	c.mu.Unlock()

	if screen != nil {
		screen.Close()
	}
}

// ScreenSharing reports whether a screen handle is live.
func (c *Controller) ScreenSharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}

// SetOnScreenShareEnded registers the callback fired when the platform
// reports the share stopped out-of-band.
func (c *Controller) SetOnScreenShareEnded(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onScreenShareEnded = fn
}

// ScreenShareEnded is called when the underlying platform surfaces a
// "sharing stopped" signal. It synthesizes a StopScreenShare and notifies
// the registered callback.
func (c *Controller) ScreenShareEnded() {
	c.mu.Lock()
	fn := c.onScreenShareEnded
	sharing := c.screen != nil
	c.mu.Unlock()

	if !sharing {
		return
	}
	slog.Debug("screen share ended by platform")
	c.StopScreenShare()
	if fn != nil {
		fn()
	}
}

// Release stops all tracks of both handles. Safe to call multiple times.
func (c *Controller) Release() {
	c.mu.Lock()
	camera, screen := c.camera, c.screen
	c.camera, c.screen = nil, nil
	c.mu.Unlock()

	if camera != nil {
		camera.Close()
	}
	if screen != nil {
		screen.Close()
	}
}
