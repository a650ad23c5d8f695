package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meshmeet/meshmeet/internal/config"
	"github.com/meshmeet/meshmeet/internal/registry"
	"github.com/meshmeet/meshmeet/internal/signaling"
)

// newTestSession builds a session with an installed local record but no
// live signaling or mesh, enough to drive handleSignal directly.
func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := New(&config.Config{DisplayName: "Me"}, "meeting-1", nil)
	s.localID = "local"
	s.reg.SetLocal(registry.Participant{ID: "local", DisplayName: "Me", Role: registry.RoleHost})
	return s
}

func TestRemoveParticipantEventDropsTarget(t *testing.T) {
	s := newTestSession(t)
	s.reg.Add(registry.Participant{ID: "p2", DisplayName: "Other"})

	// Host moderation addresses its subject with {participant_id}.
	ev, err := signaling.NewEvent(signaling.EventRemove, signaling.TargetPayload{ParticipantID: "p2"})
	require.NoError(t, err)
	s.handleSignal(ev)

	_, ok := s.reg.Get("p2")
	require.False(t, ok)
}

func TestParticipantLeftEventDropsTarget(t *testing.T) {
	s := newTestSession(t)
	s.reg.Add(registry.Participant{ID: "p2", DisplayName: "Other"})

	ev, err := signaling.NewEvent(signaling.EventParticipantLeft, signaling.LeftPayload{ID: "p2"})
	require.NoError(t, err)
	s.handleSignal(ev)

	_, ok := s.reg.Get("p2")
	require.False(t, ok)
}

func TestDepartureEventWithoutIDIsIgnored(t *testing.T) {
	s := newTestSession(t)
	s.reg.Add(registry.Participant{ID: "p2", DisplayName: "Other"})

	ev, err := signaling.NewEvent(signaling.EventParticipantLeft, struct{}{})
	require.NoError(t, err)
	s.handleSignal(ev)

	require.Equal(t, 2, s.reg.Len())
}
