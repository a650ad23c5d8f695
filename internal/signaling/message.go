package signaling

import (
	"encoding/json"
	"time"
)

// EventType tags every event carried over the signaling channel.
type EventType string

// Client-originated events.
const (
	EventJoin            EventType = "join"
	EventLeave           EventType = "leave"
	EventGetParticipants EventType = "get-participants"
	EventPeerConnected   EventType = "peer-connected"
	EventOffer           EventType = "webrtc-offer"
	EventAnswer          EventType = "webrtc-answer"
	EventICECandidate    EventType = "webrtc-ice-candidate"
	EventUpdate          EventType = "participant-updated"
	EventChatMessage     EventType = "chat-message"
	EventReaction        EventType = "reaction"
	EventRaiseHand       EventType = "raise-hand"
	EventSpeakingStatus  EventType = "speaking-status"
	EventMuteParticipant EventType = "mute-participant"
	EventRemove          EventType = "remove-participant"
)

// Server-originated events.
const (
	EventExistingParticipants EventType = "existing-participants"
	EventParticipantJoined    EventType = "participant-joined"
	EventParticipantLeft      EventType = "participant-left"
	EventError                EventType = "error"
)

// Event is the wire format for all signaling traffic. From and To carry
// peer ids on the webrtc-* handshake events so a node can discard events
// not addressed to it; they are empty on broadcast events.
type Event struct {
	Type      EventType       `json:"type"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	MeetingID string          `json:"meeting_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event with a JSON-encoded payload.
func NewEvent(t EventType, payload any) (Event, error) {
	if payload == nil {
		return Event{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Payload: b}, nil
}

// Decode unmarshals the event payload into the provided struct.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// JoinPayload announces the local display name on open.
type JoinPayload struct {
	DisplayName string `json:"display_name"`
}

// ParticipantPayload is the wire form of a participant record, used by
// existing-participants snapshots and participant-joined events.
type ParticipantPayload struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	UserName       string `json:"user_name"`
	UserEmail      string `json:"user_email,omitempty"`
	PeerID         string `json:"peer_id,omitempty"`
	Role           string `json:"role"`
	IsMuted        bool   `json:"is_muted"`
	IsVideoOn      bool   `json:"is_video_on"`
	IsScreenShared bool   `json:"is_screen_sharing,omitempty"`
	IsHandRaised   bool   `json:"is_hand_raised,omitempty"`
}

// LeftPayload identifies a departed participant.
type LeftPayload struct {
	ID string `json:"id"`
}

// PeerConnectedPayload is broadcast once a node's peer endpoint is ready
// to be called.
type PeerConnectedPayload struct {
	ParticipantID string `json:"participant_id"`
	PeerID        string `json:"peer_id"`
}

// UpdatePayload merges partial participant state; nil fields are absent
// from the wire and must not clobber existing values.
type UpdatePayload struct {
	ParticipantID   string  `json:"participant_id"`
	DisplayName     *string `json:"display_name,omitempty"`
	PeerID          *string `json:"peer_id,omitempty"`
	Role            *string `json:"role,omitempty"`
	IsMuted         *bool   `json:"is_muted,omitempty"`
	IsVideoOn       *bool   `json:"is_video_on,omitempty"`
	IsScreenSharing *bool   `json:"is_screen_sharing,omitempty"`
	IsHandRaised    *bool   `json:"is_hand_raised,omitempty"`
	IsSpeaking      *bool   `json:"is_speaking,omitempty"`
	Quality         *string `json:"connection_quality,omitempty"`
}

// ChatPayload carries a chat line through the room.
type ChatPayload struct {
	ParticipantID string    `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

// ReactionPayload carries an emoji reaction.
type ReactionPayload struct {
	ParticipantID string `json:"participant_id"`
	Emoji         string `json:"emoji"`
}

// HandPayload toggles the raised-hand flag.
type HandPayload struct {
	ParticipantID string `json:"participant_id"`
	Raised        bool   `json:"raised"`
}

// SpeakingPayload toggles the speaking flag.
type SpeakingPayload struct {
	ParticipantID string `json:"participant_id"`
	Speaking      bool   `json:"speaking"`
}

// TargetPayload identifies the subject of a host action
// (mute-participant, remove-participant).
type TargetPayload struct {
	ParticipantID string `json:"participant_id"`
}

// ErrorPayload represents error messages from the server.
type ErrorPayload struct {
	Error string `json:"error"`
}
