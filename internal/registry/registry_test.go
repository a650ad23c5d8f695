package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func newTestRegistry() *Registry {
	r := New()
	r.SetLocal(Participant{ID: "local", DisplayName: "Me", Role: RoleHost})
	return r
}

func TestAddIgnoresDuplicate(t *testing.T) {
	r := newTestRegistry()

	require.True(t, r.Add(Participant{ID: "p1", DisplayName: "Ada"}))
	require.False(t, r.Add(Participant{ID: "p1", DisplayName: "Grace"}))

	p, ok := r.Get("p1")
	require.True(t, ok)
	require.Equal(t, "Ada", p.DisplayName)
}

func TestAddDuplicateMergesPeerID(t *testing.T) {
	r := newTestRegistry()

	r.Add(Participant{ID: "p1", DisplayName: "Ada"})
	require.False(t, r.Add(Participant{ID: "p1", DisplayName: "Grace", PeerID: "peer-1"}))

	p, _ := r.Get("p1")
	require.Equal(t, "Ada", p.DisplayName)
	require.Equal(t, "peer-1", p.PeerID)
}

func TestRemoveWins(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1"})

	p, ok := r.Remove("p1")
	require.True(t, ok)
	require.Equal(t, "p1", p.ID)

	// A late update for the removed participant changes nothing.
	require.False(t, r.ApplyUpdate(signaling.UpdatePayload{
		ParticipantID: "p1",
		IsMuted:       boolptr(true),
	}, true))
	_, ok = r.Get("p1")
	require.False(t, ok)
}

func TestApplyUpdateMergesOnlyPresentFields(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1", DisplayName: "Ada", IsVideoOn: true})

	require.True(t, r.ApplyUpdate(signaling.UpdatePayload{
		ParticipantID: "p1",
		IsMuted:       boolptr(true),
	}, true))

	p, _ := r.Get("p1")
	require.True(t, p.IsMuted)
	require.True(t, p.IsVideoOn, "absent fields must not be clobbered")
	require.Equal(t, "Ada", p.DisplayName)
}

func TestApplyUpdateSuppressesRemoteEcho(t *testing.T) {
	r := newTestRegistry()

	// A remote echo of our own broadcast must not overwrite local state.
	require.False(t, r.ApplyUpdate(signaling.UpdatePayload{
		ParticipantID: "local",
		IsMuted:       boolptr(true),
	}, true))
	p, _ := r.Get("local")
	require.False(t, p.IsMuted)

	// The same update applied locally goes through.
	require.True(t, r.ApplyUpdate(signaling.UpdatePayload{
		ParticipantID: "local",
		IsMuted:       boolptr(true),
	}, false))
	p, _ = r.Get("local")
	require.True(t, p.IsMuted)
}

func TestApplyUpdateQuality(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1"})

	require.True(t, r.ApplyUpdate(signaling.UpdatePayload{
		ParticipantID: "p1",
		Quality:       strptr("poor"),
	}, true))
	p, _ := r.Get("p1")
	require.Equal(t, QualityPoor, p.Quality)
}

func TestPeerIDUniqueness(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1", PeerID: "peer-x"})
	r.Add(Participant{ID: "p2"})

	// The same endpoint announced for p2 is stolen from p1.
	require.True(t, r.SetPeerID("p2", "peer-x"))

	p1, _ := r.Get("p1")
	p2, _ := r.Get("p2")
	require.Empty(t, p1.PeerID)
	require.Equal(t, "peer-x", p2.PeerID)

	got, ok := r.ByPeerID("peer-x")
	require.True(t, ok)
	require.Equal(t, "p2", got.ID)
}

func TestClearPeerID(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1", PeerID: "peer-x"})

	r.ClearPeerID("peer-x")

	p, ok := r.Get("p1")
	require.True(t, ok, "participant stays in the room without a link")
	require.Empty(t, p.PeerID)
}

func TestSnapshotOrderedByJoinTime(t *testing.T) {
	r := New()
	base := time.Now()
	r.Add(Participant{ID: "b", JoinedAt: base.Add(2 * time.Second)})
	r.Add(Participant{ID: "c", JoinedAt: base})
	r.Add(Participant{ID: "a", JoinedAt: base})

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	require.Equal(t, "a", snap[0].ID, "ties break on id")
	require.Equal(t, "c", snap[1].ID)
	require.Equal(t, "b", snap[2].ID)
}

func TestReconcilePrunesDeparted(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1"})
	r.Add(Participant{ID: "p2"})

	// p1 left while we were disconnected; p3 joined.
	removed := r.Reconcile([]Participant{
		{ID: "p2"},
		{ID: "p3"},
	})

	require.Len(t, removed, 1)
	require.Equal(t, "p1", removed[0].ID)

	_, ok := r.Get("p1")
	require.False(t, ok)
	_, ok = r.Get("p3")
	require.True(t, ok)

	// The local record always survives a replay that omits it.
	_, ok = r.Get("local")
	require.True(t, ok)
}

func TestReconcileKeepsExistingState(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1", DisplayName: "Ada", IsMuted: true})

	r.Reconcile([]Participant{{ID: "p1", DisplayName: "Ada", PeerID: "peer-1"}})

	p, _ := r.Get("p1")
	require.True(t, p.IsMuted, "replayed snapshot must not reset known state")
	require.Equal(t, "peer-1", p.PeerID, "but a fresh peer id merges in")
}

func TestChangedCoalesces(t *testing.T) {
	r := newTestRegistry()
	r.Add(Participant{ID: "p1"})
	r.Add(Participant{ID: "p2"})

	select {
	case <-r.Changed():
	default:
		t.Fatal("expected a change notification")
	}

	select {
	case <-r.Changed():
		t.Fatal("notifications must coalesce")
	default:
	}
}

func TestRolePermissions(t *testing.T) {
	require.True(t, RoleHost.CanModerate())
	require.True(t, RoleCoHost.CanModerate())
	require.False(t, RoleParticipant.CanModerate())
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Participant{
		ID:          "p1",
		UserID:      "u1",
		DisplayName: "Ada",
		Role:        RoleCoHost,
		PeerID:      "peer-1",
		IsMuted:     true,
		IsVideoOn:   true,
	}

	got := FromPayload(p.ToPayload())
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, p.DisplayName, got.DisplayName)
	require.Equal(t, p.Role, got.Role)
	require.Equal(t, p.PeerID, got.PeerID)
	require.True(t, got.IsMuted)
	require.True(t, got.IsVideoOn)
}

func TestFromPayloadDefaultsRole(t *testing.T) {
	got := FromPayload(signaling.ParticipantPayload{ID: "p1"})
	require.Equal(t, RoleParticipant, got.Role)
}

// permute calls fn with every ordering of updates (Heap's algorithm).
func permute(updates []signaling.UpdatePayload, fn func([]signaling.UpdatePayload)) {
	var rec func(k int)
	rec = func(k int) {
		if k == 1 {
			fn(updates)
			return
		}
		for i := 0; i < k; i++ {
			rec(k - 1)
			if k%2 == 0 {
				updates[i], updates[k-1] = updates[k-1], updates[i]
			} else {
				updates[0], updates[k-1] = updates[k-1], updates[0]
			}
		}
	}
	rec(len(updates))
}

func TestUpdateBurstConvergesInAnyOrder(t *testing.T) {
	quality := string(QualityMedium)
	updates := []signaling.UpdatePayload{
		{ParticipantID: "p1", IsMuted: boolptr(true)},
		{ParticipantID: "p1", IsVideoOn: boolptr(false)},
		{ParticipantID: "p1", IsHandRaised: boolptr(true)},
		{ParticipantID: "p1", Quality: &quality},
	}

	var want []Participant
	permute(updates, func(order []signaling.UpdatePayload) {
		r := newTestRegistry()
		r.Add(Participant{ID: "p1", DisplayName: "Ada", IsVideoOn: true})
		for _, u := range order {
			r.ApplyUpdate(u, true)
		}

		got := r.Snapshot()
		for i := range got {
			got[i].JoinedAt = time.Time{}
		}
		if want == nil {
			want = got
			return
		}
		require.Equal(t, want, got)
	})

	// The converged record carries every disjoint field.
	require.Len(t, want, 2)
	p := want[len(want)-1]
	require.Equal(t, "p1", p.ID)
	require.True(t, p.IsMuted)
	require.False(t, p.IsVideoOn)
	require.True(t, p.IsHandRaised)
	require.Equal(t, QualityMedium, p.Quality)
}
