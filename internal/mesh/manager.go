// Package mesh owns one direct peer connection per remote participant,
// keyed by the remote's ephemeral peer id, and runs the offer/answer/ICE
// exchange over the signaling channel.
package mesh

import (
	"encoding/json"
	"log/slog"

	"github.com/meshmeet/meshmeet/internal/media"
	"github.com/meshmeet/meshmeet/internal/signaling"
	"github.com/meshmeet/meshmeet/internal/streams"
	"github.com/pion/webrtc/v4"
)

// EventKind tags mesh notifications delivered to the session actor.
type EventKind int

const (
	// EventTrackReceived fires when remote media arrives on a link.
	EventTrackReceived EventKind = iota
	// EventLinkState mirrors the underlying connection state.
	EventLinkState
	// EventLinkFailed fires when ICE failed or the connection closed
	// underneath us; the session should drop the peer.
	EventLinkFailed
	// EventQuality carries a control-channel RTT classification.
	EventQuality
	// EventSpeaking carries the remote speaking flag.
	EventSpeaking
	// EventControlOpen reports a remote-opened control channel; the
	// session feeds it back through AttachControl so the link is only
	// ever mutated on the actor.
	EventControlOpen
)

// Event is one mesh notification.
type Event struct {
	Kind      EventKind
	PeerID    string
	ConnState webrtc.PeerConnectionState
	Quality   LinkQuality
	Speaking  bool
	Control   DataChannel
}

// LocalMedia is the slice of the media controller the mesh reads through.
// Tracks are always read at the moment they are attached, never cached,
// so a re-acquired local stream is always the one new links carry.
type LocalMedia interface {
	OutboundAudioTrack() media.Track
	OutboundVideoTrack() media.Track
}

// Manager holds the link table. All exported methods must be called from
// the session actor; transport callbacks never mutate the table directly,
// they emit Events the session feeds back in.
type Manager struct {
	localPeerID string
	factory     TransportFactory
	media       LocalMedia
	store       *streams.Store
	send        func(signaling.Event)

	links    map[string]*Link
	earlyICE map[string][]webrtc.ICECandidateInit

	events chan Event
}

func NewManager(localPeerID string, factory TransportFactory, localMedia LocalMedia, store *streams.Store, send func(signaling.Event)) *Manager {
	return &Manager{
		localPeerID: localPeerID,
		factory:     factory,
		media:       localMedia,
		store:       store,
		send:        send,
		links:       make(map[string]*Link),
		earlyICE:    make(map[string][]webrtc.ICECandidateInit),
		events:      make(chan Event, 128),
	}
}

// Events returns mesh notifications for the session actor.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// LocalPeerID returns this node's peer id.
func (m *Manager) LocalPeerID() string {
	return m.localPeerID
}

// ShouldCall decides which side initiates when two peers learn about each
// other: the lexicographically smaller peer id always plays caller. This
// is the deterministic glare tie-break.
func (m *Manager) ShouldCall(remotePeerID string) bool {
	return m.localPeerID < remotePeerID
}

// HasLink reports whether a link exists for a peer id.
func (m *Manager) HasLink(peerID string) bool {
	_, ok := m.links[peerID]
	return ok
}

// LinkState returns the negotiation state of a link.
func (m *Manager) LinkState(peerID string) (State, bool) {
	link, ok := m.links[peerID]
	if !ok {
		return StateClosed, false
	}
	return link.state, true
}

// Len reports the number of active links.
func (m *Manager) Len() int {
	return len(m.links)
}

// PeerIDs returns the peer ids with an active link.
func (m *Manager) PeerIDs() []string {
	out := make([]string, 0, len(m.links))
	for id := range m.links {
		out = append(out, id)
	}
	return out
}

// Call initiates the caller path toward a newly discovered peer. A fresh
// handshake for an already-linked peer does not create a duplicate.
func (m *Manager) Call(remotePeerID string) error {
	if remotePeerID == m.localPeerID {
		return nil
	}
	if _, exists := m.links[remotePeerID]; exists {
		return NewError("call", remotePeerID, ErrDuplicateConnection)
	}

	link, err := m.newLink(remotePeerID, RoleCaller)
	if err != nil {
		return err
	}

	// Control channel must exist before the offer so it rides the
	// initial negotiation.
	if dc, err := link.tp.CreateDataChannel(ControlChannelLabel); err == nil {
		link.control = newControlChannel(remotePeerID, dc, m.emitQuality, m.emitSpeaking)
	} else {
		slog.Warn("control channel unavailable", "peer", remotePeerID, "err", err)
	}

	offer, err := link.tp.CreateOffer()
	if err != nil {
		m.dropLink(link)
		return NewError("create offer", remotePeerID, err)
	}
	link.state = StateOffering
	m.publish(link)

	m.sendSDP(signaling.EventOffer, remotePeerID, offer)
	return nil
}

// HandleOffer runs the callee path for an inbound offer addressed to us.
func (m *Manager) HandleOffer(ev signaling.Event) error {
	from := ev.From
	if from == "" || ev.To != m.localPeerID {
		return nil
	}

	if existing, ok := m.links[from]; ok {
		// Glare: both sides called near-simultaneously. The smaller peer
		// id is the rightful caller; if that is us, the inbound offer is
		// discarded, otherwise our half-open link is replaced atomically.
		if m.ShouldCall(from) {
			slog.Debug("discarding glare offer", "peer", from)
			return NewError("handle offer", from, ErrDuplicateConnection)
		}
		m.dropLink(existing)
	}

	var offer webrtc.SessionDescription
	if err := ev.Decode(&offer); err != nil {
		return NewError("decode offer", from, err)
	}

	link, err := m.newLink(from, RoleCallee)
	if err != nil {
		return err
	}
	link.state = StateAnswering

	answer, err := link.tp.CreateAnswer(offer)
	if err != nil {
		m.dropLink(link)
		return NewError("create answer", from, err)
	}

	m.sendSDP(signaling.EventAnswer, from, answer)
	link.state = StateConnected
	m.publish(link)

	link.flushPendingICE()
	return nil
}

// HandleAnswer finishes the caller path.
func (m *Manager) HandleAnswer(ev signaling.Event) error {
	if ev.To != m.localPeerID {
		return nil
	}
	link, ok := m.links[ev.From]
	if !ok {
		return NewError("handle answer", ev.From, ErrUnknownPeer)
	}
	if link.state != StateOffering {
		slog.Debug("answer in unexpected state", "peer", ev.From, "state", link.state)
		return nil
	}

	var answer webrtc.SessionDescription
	if err := ev.Decode(&answer); err != nil {
		return NewError("decode answer", ev.From, err)
	}
	return link.applyRemoteAnswer(answer)
}

// HandleCandidate applies an inbound ICE candidate, buffering it until
// the link exists and its remote description is set.
func (m *Manager) HandleCandidate(ev signaling.Event) error {
	if ev.To != m.localPeerID {
		return nil
	}

	var c webrtc.ICECandidateInit
	if err := ev.Decode(&c); err != nil {
		return NewError("decode candidate", ev.From, err)
	}

	link, ok := m.links[ev.From]
	if !ok {
		// The offer for this pair has not been processed yet.
		m.earlyICE[ev.From] = append(m.earlyICE[ev.From], c)
		return nil
	}
	return link.addCandidate(c)
}

// ReplaceVideoTrack swaps the outbound video track on every existing
// link's sender in place, with no renegotiation. A link with no video
// sender is a bug state: reported and logged, never a crash.
func (m *Manager) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	var firstErr error
	for _, link := range m.links {
		if err := link.replaceVideoTrack(track); err != nil {
			slog.Error("track replace failed", "peer", link.PeerID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SendSpeaking relays the local speaking flag over every control channel.
func (m *Manager) SendSpeaking(speaking bool) {
	for _, link := range m.links {
		if link.control != nil {
			link.control.SendSpeaking(speaking)
		}
	}
}

// AttachControl installs a remote-opened control channel on its link.
// Fed back by the session from EventControlOpen notifications. A channel
// for a gone peer, or a link that already holds one, is closed.
func (m *Manager) AttachControl(peerID string, dc DataChannel) {
	link, ok := m.links[peerID]
	if !ok || link.control != nil {
		_ = dc.Close()
		return
	}
	link.control = newControlChannel(peerID, dc, m.emitQuality, m.emitSpeaking)
}

// MarkConnected records the underlying connection reaching connected.
// Fed back by the session from EventLinkState notifications.
func (m *Manager) MarkConnected(peerID string) {
	link, ok := m.links[peerID]
	if !ok {
		return
	}
	if link.state == StateAnswered || link.state == StateAnswering || link.state == StateConnected {
		link.state = StateConnected
	}
}

// ClosePeer tears one link down: close the connection, drop it from the
// table, drop the peer's remote stream. No automatic retry; a fresh
// peer-connected broadcast is required to re-establish.
func (m *Manager) ClosePeer(peerID string) {
	link, ok := m.links[peerID]
	if !ok {
		return
	}
	m.dropLink(link)
}

// CloseAll tears down every link, part of the session teardown sequence.
func (m *Manager) CloseAll() {
	for _, link := range m.links {
		link.close()
	}
	m.links = make(map[string]*Link)
	m.earlyICE = make(map[string][]webrtc.ICECandidateInit)
}

func (m *Manager) dropLink(link *Link) {
	link.close()
	delete(m.links, link.PeerID)
	delete(m.earlyICE, link.PeerID)
	m.store.Delete(link.PeerID)
}

// newLink creates the transport, attaches the current local tracks and
// wires the callbacks. The link only enters the table fully populated.
func (m *Manager) newLink(remotePeerID string, role Role) (*Link, error) {
	tp, err := m.factory()
	if err != nil {
		return nil, NewError("new link", remotePeerID, err)
	}

	link := &Link{PeerID: remotePeerID, Role: role, state: StateIdle, tp: tp}

	if audio := m.media.OutboundAudioTrack(); audio != nil {
		sender, err := tp.AddTrack(audio.Local())
		if err != nil {
			_ = tp.Close()
			return nil, NewError("attach audio", remotePeerID, err)
		}
		link.audioSender = sender
	}
	if video := m.media.OutboundVideoTrack(); video != nil {
		sender, err := tp.AddTrack(video.Local())
		if err != nil {
			_ = tp.Close()
			return nil, NewError("attach video", remotePeerID, err)
		}
		link.videoSender = sender
	}

	tp.OnICECandidate(func(c webrtc.ICECandidateInit) {
		payload, err := json.Marshal(c)
		if err != nil {
			return
		}
		m.send(signaling.Event{
			Type:    signaling.EventICECandidate,
			From:    m.localPeerID,
			To:      remotePeerID,
			Payload: payload,
		})
	})

	tp.OnTrack(func(track *webrtc.TrackRemote) {
		m.store.AddTrack(remotePeerID, track)
		m.emit(Event{Kind: EventTrackReceived, PeerID: remotePeerID})
	})

	tp.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			m.emit(Event{Kind: EventLinkFailed, PeerID: remotePeerID, ConnState: state})
		default:
			m.emit(Event{Kind: EventLinkState, PeerID: remotePeerID, ConnState: state})
		}
	})

	tp.OnDataChannel(func(dc DataChannel) {
		if dc.Label() != ControlChannelLabel {
			return
		}
		m.emit(Event{Kind: EventControlOpen, PeerID: remotePeerID, Control: dc})
	})

	m.links[remotePeerID] = link

	// Candidates that raced ahead of the offer.
	if early := m.earlyICE[remotePeerID]; len(early) > 0 {
		link.pendingICE = append(link.pendingICE, early...)
		delete(m.earlyICE, remotePeerID)
	}

	return link, nil
}

func (m *Manager) sendSDP(t signaling.EventType, remotePeerID string, desc webrtc.SessionDescription) {
	payload, err := json.Marshal(desc)
	if err != nil {
		return
	}
	m.send(signaling.Event{
		Type:    t,
		From:    m.localPeerID,
		To:      remotePeerID,
		Payload: payload,
	})
}

func (m *Manager) publish(link *Link) {
	slog.Debug("link state", "peer", link.PeerID, "role", link.Role, "state", link.state)
}

func (m *Manager) emit(ev Event) {
	select {
	case m.events <- ev:
	default:
		slog.Warn("mesh event dropped", "kind", ev.Kind, "peer", ev.PeerID)
	}
}

func (m *Manager) emitQuality(peerID string, q LinkQuality) {
	m.emit(Event{Kind: EventQuality, PeerID: peerID, Quality: q})
}

func (m *Manager) emitSpeaking(peerID string, speaking bool) {
	m.emit(Event{Kind: EventSpeaking, PeerID: peerID, Speaking: speaking})
}
