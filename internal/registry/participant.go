package registry

import (
	"time"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

// Role is the participant's role for the meeting session.
type Role string

const (
	RoleHost        Role = "host"
	RoleCoHost      Role = "co-host"
	RoleParticipant Role = "participant"
)

// CanModerate reports whether the role may mute or remove others.
func (r Role) CanModerate() bool {
	return r == RoleHost || r == RoleCoHost
}

// Quality is the coarse connection quality shown next to a participant.
type Quality string

const (
	QualityGood   Quality = "good"
	QualityMedium Quality = "medium"
	QualityPoor   Quality = "poor"
)

// Participant is one human in the room. ID is the stable server-issued
// identity for the meeting session; PeerID is set only once that
// participant's peer endpoint has been broadcast and observed.
type Participant struct {
	ID          string
	UserID      string
	DisplayName string
	Email       string
	Role        Role

	PeerID string

	IsMuted         bool
	IsVideoOn       bool
	IsScreenSharing bool
	IsHandRaised    bool
	IsSpeaking      bool
	Quality         Quality

	JoinedAt time.Time
}

// FromPayload converts the wire form into a Participant.
func FromPayload(p signaling.ParticipantPayload) Participant {
	role := Role(p.Role)
	if role == "" {
		role = RoleParticipant
	}
	return Participant{
		ID:              p.ID,
		UserID:          p.UserID,
		DisplayName:     p.UserName,
		Email:           p.UserEmail,
		Role:            role,
		PeerID:          p.PeerID,
		IsMuted:         p.IsMuted,
		IsVideoOn:       p.IsVideoOn,
		IsScreenSharing: p.IsScreenShared,
		IsHandRaised:    p.IsHandRaised,
		Quality:         QualityGood,
		JoinedAt:        time.Now(),
	}
}

// ToPayload converts a Participant into the wire form.
func (p Participant) ToPayload() signaling.ParticipantPayload {
	return signaling.ParticipantPayload{
		ID:             p.ID,
		UserID:         p.UserID,
		UserName:       p.DisplayName,
		UserEmail:      p.Email,
		PeerID:         p.PeerID,
		Role:           string(p.Role),
		IsMuted:        p.IsMuted,
		IsVideoOn:      p.IsVideoOn,
		IsScreenShared: p.IsScreenSharing,
		IsHandRaised:   p.IsHandRaised,
	}
}
