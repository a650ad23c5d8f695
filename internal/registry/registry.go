// Package registry holds the canonical, UI-facing list of participants,
// reconciled from signaling presence events, peer-id broadcasts and
// locally driven control actions.
package registry

import (
	"sort"
	"sync"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

// Registry is the single source of truth the rest of the application
// renders from. The session mutates it through the reconciliation rules;
// the rendering layer only reads snapshots.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Participant
	localID string
	changed chan struct{}
}

func New() *Registry {
	return &Registry{
		byID:    make(map[string]*Participant),
		changed: make(chan struct{}, 1),
	}
}

// SetLocal installs the local participant record. The local record is
// authoritative: remote updates for it are ignored so an echo of our own
// broadcast can never overwrite optimistic local state.
func (r *Registry) SetLocal(p Participant) {
	r.mu.Lock()
	r.localID = p.ID
	cp := p
	r.byID[p.ID] = &cp
	r.mu.Unlock()
	r.notify()
}

// LocalID returns the id of the local participant.
func (r *Registry) LocalID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localID
}

// Add inserts a participant. An entry for an id already present is
// ignored rather than overwritten, except that an incoming peer id is
// merged in if the existing record lacks one. Reports whether the record
// was newly inserted.
func (r *Registry) Add(p Participant) bool {
	r.mu.Lock()

	if existing, ok := r.byID[p.ID]; ok {
		if existing.PeerID == "" && p.PeerID != "" {
			r.claimPeerIDLocked(p.ID, p.PeerID)
			existing.PeerID = p.PeerID
			r.mu.Unlock()
			r.notify()
			return false
		}
		r.mu.Unlock()
		return false
	}

	if p.PeerID != "" {
		r.claimPeerIDLocked(p.ID, p.PeerID)
	}
	cp := p
	r.byID[p.ID] = &cp
	r.mu.Unlock()
	r.notify()
	return true
}

// Remove deletes the record for an id. Removal always wins over any other
// pending update for that id.
func (r *Registry) Remove(id string) (Participant, bool) {
	r.mu.Lock()
	p, ok := r.byID[id]
	if ok {
		delete(r.byID, id)
	}
	r.mu.Unlock()

	if !ok {
		return Participant{}, false
	}
	r.notify()
	return *p, true
}

// SetPeerID records a participant's peer endpoint id. A peer id is unique
// across the registry: any older record holding it is cleared first.
func (r *Registry) SetPeerID(id, peerID string) bool {
	r.mu.Lock()
	p, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.claimPeerIDLocked(id, peerID)
	p.PeerID = peerID
	r.mu.Unlock()
	r.notify()
	return true
}

// ClearPeerID unlinks a dead peer endpoint from whichever record holds
// it, leaving the participant in the room without a mesh link.
func (r *Registry) ClearPeerID(peerID string) {
	if peerID == "" {
		return
	}
	r.mu.Lock()
	cleared := false
	for _, p := range r.byID {
		if p.PeerID == peerID {
			p.PeerID = ""
			cleared = true
		}
	}
	r.mu.Unlock()
	if cleared {
		r.notify()
	}
}

func (r *Registry) claimPeerIDLocked(id, peerID string) {
	for otherID, other := range r.byID {
		if otherID != id && other.PeerID == peerID {
			other.PeerID = ""
		}
	}
}

// ApplyUpdate merges only the fields present in the payload. Updates
// arriving from the network for the local participant are dropped
// (fromRemote echo suppression). Reports whether a record changed.
func (r *Registry) ApplyUpdate(u signaling.UpdatePayload, fromRemote bool) bool {
	r.mu.Lock()

	if fromRemote && u.ParticipantID == r.localID {
		r.mu.Unlock()
		return false
	}

	p, ok := r.byID[u.ParticipantID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Role != nil {
		p.Role = Role(*u.Role)
	}
	if u.PeerID != nil && *u.PeerID != "" {
		r.claimPeerIDLocked(p.ID, *u.PeerID)
		p.PeerID = *u.PeerID
	}
	if u.IsMuted != nil {
		p.IsMuted = *u.IsMuted
	}
	if u.IsVideoOn != nil {
		p.IsVideoOn = *u.IsVideoOn
	}
	if u.IsScreenSharing != nil {
		p.IsScreenSharing = *u.IsScreenSharing
	}
	if u.IsHandRaised != nil {
		p.IsHandRaised = *u.IsHandRaised
	}
	if u.IsSpeaking != nil {
		p.IsSpeaking = *u.IsSpeaking
	}
	if u.Quality != nil {
		p.Quality = Quality(*u.Quality)
	}

	r.mu.Unlock()
	r.notify()
	return true
}

// Get returns a copy of the record for an id.
func (r *Registry) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// ByPeerID returns the record holding a peer id.
func (r *Registry) ByPeerID(peerID string) (Participant, bool) {
	if peerID == "" {
		return Participant{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.PeerID == peerID {
			return *p, true
		}
	}
	return Participant{}, false
}

// Len reports the number of participants.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Snapshot returns a stable-ordered copy of every record.
func (r *Registry) Snapshot() []Participant {
	r.mu.RLock()
	out := make([]Participant, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, *p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Reconcile applies a full presence snapshot, as replayed after a
// signaling reconnect. Participants absent from the snapshot are removed
// (the gap is treated as having been away); present ones are added under
// the duplicate-insertion rule. The local record always survives.
// Returns the removed participants so their connections can be torn down.
func (r *Registry) Reconcile(snapshot []Participant) []Participant {
	present := make(map[string]bool, len(snapshot))
	for _, p := range snapshot {
		present[p.ID] = true
	}

	r.mu.Lock()
	var removed []Participant
	for id, p := range r.byID {
		if id == r.localID || present[id] {
			continue
		}
		removed = append(removed, *p)
		delete(r.byID, id)
	}
	r.mu.Unlock()

	for _, p := range snapshot {
		r.Add(p)
	}
	if len(removed) > 0 {
		r.notify()
	}
	return removed
}

// Changed signals coalesced registry mutations; the UI pulls a fresh
// Snapshot when it fires.
func (r *Registry) Changed() <-chan struct{} {
	return r.changed
}

func (r *Registry) notify() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
