package hub

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

// MemoryStore keeps participant records in process memory, for running
// the hub without Redis. Same rules as RedisStore: the first joiner of
// a meeting becomes host and a returning user keeps their record.
// Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	meetings map[string]map[string]signaling.ParticipantPayload
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{meetings: make(map[string]map[string]signaling.ParticipantPayload)}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Join(_ context.Context, meetingID, userID, displayName string) (signaling.ParticipantPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting := s.meetings[meetingID]
	for _, p := range meeting {
		if p.UserID == userID {
			return p, nil
		}
	}

	p := signaling.ParticipantPayload{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserName: displayName,
		Role:     "participant",
	}
	if len(meeting) == 0 {
		p.Role = "host"
	}

	if meeting == nil {
		meeting = make(map[string]signaling.ParticipantPayload)
		s.meetings[meetingID] = meeting
	}
	meeting[p.ID] = p
	return p, nil
}

func (s *MemoryStore) Snapshot(_ context.Context, meetingID string) ([]signaling.ParticipantPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meeting := s.meetings[meetingID]
	out := make([]signaling.ParticipantPayload, 0, len(meeting))
	for _, p := range meeting {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, meetingID, participantID string) (signaling.ParticipantPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.meetings[meetingID][participantID]
	if !ok {
		return signaling.ParticipantPayload{}, ErrParticipantNotFound
	}
	return p, nil
}

func (s *MemoryStore) Update(_ context.Context, meetingID string, u signaling.UpdatePayload) (signaling.ParticipantPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.meetings[meetingID][u.ParticipantID]
	if !ok {
		return signaling.ParticipantPayload{}, ErrParticipantNotFound
	}
	applyUpdate(&p, u)
	s.meetings[meetingID][p.ID] = p
	return p, nil
}

func (s *MemoryStore) Remove(_ context.Context, meetingID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.meetings[meetingID], participantID)
	return nil
}

func (s *MemoryStore) End(_ context.Context, meetingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.meetings, meetingID)
	return nil
}
