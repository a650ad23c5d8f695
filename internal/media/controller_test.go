package media

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func acquire(t *testing.T) (*Controller, *Capture) {
	t.Helper()
	c := NewController(NewSyntheticSource())
	cap, err := c.Acquire(DefaultConstraints())
	require.NoError(t, err)
	t.Cleanup(c.Release)
	return c, cap
}

func TestAcquireIsIdempotent(t *testing.T) {
	c, cap := acquire(t)

	again, err := c.Acquire(DefaultConstraints())
	require.NoError(t, err)
	require.Same(t, cap, again)
}

func TestAcquireOpensRequestedKinds(t *testing.T) {
	c := NewController(NewSyntheticSource())
	defer c.Release()

	cap, err := c.Acquire(Constraints{Audio: true})
	require.NoError(t, err)
	require.NotNil(t, cap.Audio)
	require.Nil(t, cap.Video)
	require.Equal(t, webrtc.RTPCodecTypeAudio, cap.Audio.Kind())
}

func TestToggleFlipsInPlace(t *testing.T) {
	c, cap := acquire(t)

	require.True(t, cap.Audio.Enabled())
	c.ToggleAudio(false)
	require.False(t, cap.Audio.Enabled())

	// The track object is untouched, only its state flips.
	require.Same(t, cap.Audio.Local(), c.OutboundAudioTrack().Local())

	c.ToggleVideo(false)
	require.False(t, cap.Video.Enabled())
	c.ToggleVideo(true)
	require.True(t, cap.Video.Enabled())
}

func TestToggleWithoutCaptureIsNoop(t *testing.T) {
	c := NewController(NewSyntheticSource())
	c.ToggleAudio(false)
	c.ToggleVideo(false)
	require.Nil(t, c.OutboundAudioTrack())
}

func TestScreenShareOverridesOutboundVideo(t *testing.T) {
	c, cap := acquire(t)

	require.Same(t, cap.Video.Local(), c.OutboundVideoTrack().Local())

	screen, err := c.StartScreenShare()
	require.NoError(t, err)
	require.True(t, c.ScreenSharing())
	require.Same(t, screen.Video.Local(), c.OutboundVideoTrack().Local())

	c.StopScreenShare()
	require.False(t, c.ScreenSharing())
	require.Same(t, cap.Video.Local(), c.OutboundVideoTrack().Local())
}

func TestStartScreenShareWhileSharingReturnsExisting(t *testing.T) {
	c, _ := acquire(t)

	first, err := c.StartScreenShare()
	require.NoError(t, err)
	second, err := c.StartScreenShare()
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestScreenSlotFreesOnStop(t *testing.T) {
	source := NewSyntheticSource()
	c := NewController(source)
	defer c.Release()

	_, err := c.StartScreenShare()
	require.NoError(t, err)

	// The slot is held while sharing.
	_, err = source.OpenScreen("other")
	require.ErrorIs(t, err, ErrScreenShareBusy)

	c.StopScreenShare()
	tr, err := source.OpenScreen("other")
	require.NoError(t, err)
	tr.Stop()
}

func TestScreenShareEndedCallback(t *testing.T) {
	c, _ := acquire(t)

	var fired bool
	c.SetOnScreenShareEnded(func() { fired = true })

	// Without an active share the platform signal is ignored.
	c.ScreenShareEnded()
	require.False(t, fired)

	_, err := c.StartScreenShare()
	require.NoError(t, err)
	c.ScreenShareEnded()
	require.True(t, fired)
	require.False(t, c.ScreenSharing())
}

func TestReleaseIsIdempotent(t *testing.T) {
	c, _ := acquire(t)
	_, err := c.StartScreenShare()
	require.NoError(t, err)

	c.Release()
	c.Release()

	require.Nil(t, c.Live())
	require.Nil(t, c.OutboundVideoTrack())
	require.False(t, c.ScreenSharing())
}

func TestMediaErrorWraps(t *testing.T) {
	err := WrapError("open camera", ErrDeviceBusy, "in use by another app")
	require.ErrorIs(t, err, ErrDeviceBusy)
	require.Contains(t, err.Error(), "in use by another app")
}
