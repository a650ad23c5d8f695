package hub

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

// Inbound pairs an event with the connection it arrived on.
type Inbound struct {
	Client *Client
	Event  signaling.Event
}

// Hub fans signaling traffic between the participants of each meeting.
// A single goroutine owns all room state; connections talk to it over
// channels.
type Hub struct {
	store Store
	rooms map[string]*Room

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *Inbound
}

// NewHub creates a hub backed by the given participant store.
func NewHub(store Store) *Hub {
	return &Hub{
		store:      store,
		rooms:      make(map[string]*Room),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *Inbound, 64),
	}
}

// Run is the hub's main processing loop. It is the only goroutine that
// touches room state.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.Register:
			slog.Debug("client registered", "user", c.UserID, "meeting", c.MeetingID)

		case c := <-h.Unregister:
			h.detach(c)
			close(c.Send)

		case in := <-h.Inbound:
			h.handle(in.Client, in.Event)
		}
	}
}

func (h *Hub) handle(c *Client, ev signaling.Event) {
	switch ev.Type {
	case signaling.EventJoin:
		h.handleJoin(c, ev)

	case signaling.EventGetParticipants:
		h.sendSnapshot(c)

	case signaling.EventLeave:
		h.detach(c)

	case signaling.EventOffer, signaling.EventAnswer, signaling.EventICECandidate:
		h.relay(c, ev)

	case signaling.EventPeerConnected:
		h.handlePeerConnected(c, ev)

	case signaling.EventUpdate:
		h.handleUpdate(c, ev)

	case signaling.EventRaiseHand, signaling.EventSpeakingStatus,
		signaling.EventChatMessage, signaling.EventReaction,
		signaling.EventMuteParticipant, signaling.EventRemove:
		h.broadcast(c, ev)

	default:
		slog.Debug("unknown event type", "type", ev.Type)
	}
}

// handleJoin attaches the connection to its room and announces the
// participant to everyone already there. The REST join created the
// record; a reconnect reuses it.
func (h *Hub) handleJoin(c *Client, ev signaling.Event) {
	var join signaling.JoinPayload
	if err := ev.Decode(&join); err == nil && join.DisplayName != "" {
		c.DisplayName = join.DisplayName
	}

	ctx, cancel := storeCtx()
	defer cancel()
	p, err := h.store.Join(ctx, c.MeetingID, c.UserID, c.DisplayName)
	if err != nil {
		slog.Error("join failed", "err", err, "meeting", c.MeetingID)
		c.deliver(errorEvent("join failed"))
		return
	}
	c.ParticipantID = p.ID

	room, ok := h.rooms[c.MeetingID]
	if !ok {
		room = newRoom(c.MeetingID)
		h.rooms[c.MeetingID] = room
	}

	// A second socket for the same participant replaces the first.
	if prev, ok := room.clients[p.ID]; ok && prev != c {
		room.remove(prev)
		close(prev.Send)
	}
	room.add(c)

	joined, err := signaling.NewEvent(signaling.EventParticipantJoined, p)
	if err != nil {
		return
	}
	joined.MeetingID = c.MeetingID
	h.broadcast(c, joined)

	slog.Info("participant joined", "meeting", c.MeetingID, "participant", p.ID, "name", p.UserName)
}

func (h *Hub) sendSnapshot(c *Client) {
	ctx, cancel := storeCtx()
	defer cancel()
	snapshot, err := h.store.Snapshot(ctx, c.MeetingID)
	if err != nil {
		slog.Error("snapshot failed", "err", err, "meeting", c.MeetingID)
		c.deliver(errorEvent("snapshot failed"))
		return
	}

	ev, err := signaling.NewEvent(signaling.EventExistingParticipants, snapshot)
	if err != nil {
		return
	}
	ev.MeetingID = c.MeetingID
	c.deliver(ev)
}

// relay forwards a webrtc handshake event to the connection that
// announced the target peer id.
func (h *Hub) relay(c *Client, ev signaling.Event) {
	room, ok := h.rooms[c.MeetingID]
	if !ok {
		return
	}
	target, ok := room.byPeer[ev.To]
	if !ok {
		slog.Debug("relay target unknown", "meeting", c.MeetingID, "to", ev.To)
		return
	}
	ev.MeetingID = c.MeetingID
	target.deliver(ev)
}

func (h *Hub) handlePeerConnected(c *Client, ev signaling.Event) {
	var p signaling.PeerConnectedPayload
	if err := ev.Decode(&p); err != nil {
		return
	}
	room, ok := h.rooms[c.MeetingID]
	if !ok {
		return
	}
	room.setPeerID(c, p.PeerID)

	ctx, cancel := storeCtx()
	defer cancel()
	if _, err := h.store.Update(ctx, c.MeetingID, signaling.UpdatePayload{
		ParticipantID: c.ParticipantID,
		PeerID:        &p.PeerID,
	}); err != nil {
		slog.Warn("peer id persist failed", "err", err)
	}

	h.broadcast(c, ev)
}

func (h *Hub) handleUpdate(c *Client, ev signaling.Event) {
	var u signaling.UpdatePayload
	if err := ev.Decode(&u); err != nil {
		return
	}

	ctx, cancel := storeCtx()
	defer cancel()
	if _, err := h.store.Update(ctx, c.MeetingID, u); err != nil {
		slog.Warn("participant update failed", "err", err, "participant", u.ParticipantID)
	}

	h.broadcast(c, ev)
}

// broadcast delivers an event to every other connection in the sender's
// room.
func (h *Hub) broadcast(sender *Client, ev signaling.Event) {
	room, ok := h.rooms[sender.MeetingID]
	if !ok {
		return
	}
	ev.MeetingID = sender.MeetingID
	for _, c := range room.clients {
		if c == sender {
			continue
		}
		c.deliver(ev)
	}
}

// detach removes a connection from its room and tells the rest of the
// room the participant left. The store record stays so a reconnecting
// participant keeps their identity; REST leave deletes it.
func (h *Hub) detach(c *Client) {
	room, ok := h.rooms[c.MeetingID]
	if !ok || c.ParticipantID == "" {
		return
	}
	if room.clients[c.ParticipantID] != c {
		return
	}
	room.remove(c)

	left, err := signaling.NewEvent(signaling.EventParticipantLeft, signaling.LeftPayload{ID: c.ParticipantID})
	if err == nil {
		left.MeetingID = c.MeetingID
		for _, other := range room.clients {
			other.deliver(left)
		}
	}

	if room.empty() {
		delete(h.rooms, c.MeetingID)
		slog.Info("room closed", "meeting", c.MeetingID)
	}
	c.ParticipantID = ""
}

func errorEvent(msg string) signaling.Event {
	b, _ := json.Marshal(signaling.ErrorPayload{Error: msg})
	return signaling.Event{Type: signaling.EventError, Payload: b}
}

func storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
