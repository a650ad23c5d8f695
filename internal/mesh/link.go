package mesh

import (
	"github.com/pion/webrtc/v4"
)

// Role records which side of the handshake this node played for a link.
type Role string

const (
	RoleCaller Role = "caller"
	RoleCallee Role = "callee"
)

// State is the negotiation state of one link.
//
// Caller path: idle -> offering -> answered -> connected -> closed.
// Callee path: idle -> answering -> connected -> closed.
type State string

const (
	StateIdle      State = "idle"
	StateOffering  State = "offering"
	StateAnswering State = "answering"
	StateAnswered  State = "answered"
	StateConnected State = "connected"
	StateClosed    State = "closed"
)

// Link is one direct connection to a remote peer, keyed by the remote
// peer id. Exactly one Link exists per peer id at any time; the Manager
// enforces that. All Link mutation happens on the session actor.
type Link struct {
	PeerID string
	Role   Role

	state State
	tp    Transport

	// Candidates received before the remote description is set are
	// buffered and applied after.
	pendingICE []webrtc.ICECandidateInit

	audioSender Sender
	videoSender Sender

	control *controlChannel
}

// State returns the current negotiation state.
func (l *Link) State() State {
	return l.state
}

// applyRemoteAnswer finishes the caller path: install the answer and
// flush buffered candidates.
func (l *Link) applyRemoteAnswer(answer webrtc.SessionDescription) error {
	if err := l.tp.SetAnswer(answer); err != nil {
		return NewError("set answer", l.PeerID, err)
	}
	l.state = StateAnswered
	l.flushPendingICE()
	return nil
}

// addCandidate applies a candidate immediately once the remote
// description is set, buffering it otherwise.
func (l *Link) addCandidate(c webrtc.ICECandidateInit) error {
	if !l.tp.RemoteDescriptionSet() {
		l.pendingICE = append(l.pendingICE, c)
		return nil
	}
	return l.tp.AddICECandidate(c)
}

func (l *Link) flushPendingICE() {
	for _, c := range l.pendingICE {
		// a candidate the agent rejects is not fatal; others may pair
		_ = l.tp.AddICECandidate(c)
	}
	l.pendingICE = nil
}

// replaceVideoTrack swaps the outbound video sender's track in place.
// The connection never renegotiates.
func (l *Link) replaceVideoTrack(track webrtc.TrackLocal) error {
	if l.videoSender == nil {
		return NewError("replace video track", l.PeerID, ErrTrackReplaceFailed)
	}
	if err := l.videoSender.ReplaceTrack(track); err != nil {
		return NewError("replace video track", l.PeerID, err)
	}
	return nil
}

func (l *Link) close() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	if l.control != nil {
		l.control.stop()
	}
	_ = l.tp.Close()
}
