package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/meshmeet/meshmeet/internal/signaling"
)

const meetingTTL = 24 * time.Hour

// ErrParticipantNotFound is returned when a participant id does not
// exist in the meeting.
var ErrParticipantNotFound = errors.New("participant not found")

// Store holds meeting participant records for the hub. RedisStore backs
// a production hub and survives restarts; MemoryStore backs a hub with
// no Redis configured.
type Store interface {
	Join(ctx context.Context, meetingID, userID, displayName string) (signaling.ParticipantPayload, error)
	Snapshot(ctx context.Context, meetingID string) ([]signaling.ParticipantPayload, error)
	Get(ctx context.Context, meetingID, participantID string) (signaling.ParticipantPayload, error)
	Update(ctx context.Context, meetingID string, u signaling.UpdatePayload) (signaling.ParticipantPayload, error)
	Remove(ctx context.Context, meetingID, participantID string) error
	End(ctx context.Context, meetingID string) error
	Close() error
}

// RedisStore persists participant records in Redis, one hash per
// meeting, participant id as field.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error { return s.rdb.Close() }

func meetingKey(meetingID string) string {
	return "meeting:" + meetingID + ":participants"
}

// Join returns the caller's participant record, creating it when the
// user has no record in the meeting yet. The first participant of a
// meeting becomes the host.
func (s *RedisStore) Join(ctx context.Context, meetingID, userID, displayName string) (signaling.ParticipantPayload, error) {
	key := meetingKey(meetingID)

	// A reconnecting user keeps their existing record.
	existing, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return signaling.ParticipantPayload{}, err
	}
	for _, raw := range existing {
		var p signaling.ParticipantPayload
		if json.Unmarshal([]byte(raw), &p) == nil && p.UserID == userID {
			return p, nil
		}
	}

	p := signaling.ParticipantPayload{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserName: displayName,
		Role:     "participant",
		IsMuted:  false,
	}
	if len(existing) == 0 {
		p.Role = "host"
	}

	if err := s.put(ctx, meetingID, p); err != nil {
		return signaling.ParticipantPayload{}, err
	}
	s.rdb.Expire(ctx, key, meetingTTL)
	return p, nil
}

// Snapshot returns every participant record in the meeting.
func (s *RedisStore) Snapshot(ctx context.Context, meetingID string) ([]signaling.ParticipantPayload, error) {
	raw, err := s.rdb.HGetAll(ctx, meetingKey(meetingID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]signaling.ParticipantPayload, 0, len(raw))
	for _, v := range raw {
		var p signaling.ParticipantPayload
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns one participant record.
func (s *RedisStore) Get(ctx context.Context, meetingID, participantID string) (signaling.ParticipantPayload, error) {
	raw, err := s.rdb.HGet(ctx, meetingKey(meetingID), participantID).Result()
	if errors.Is(err, redis.Nil) {
		return signaling.ParticipantPayload{}, ErrParticipantNotFound
	}
	if err != nil {
		return signaling.ParticipantPayload{}, err
	}
	var p signaling.ParticipantPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return signaling.ParticipantPayload{}, err
	}
	return p, nil
}

// Update merges the non-nil fields of the payload into the stored
// record and returns the result.
func (s *RedisStore) Update(ctx context.Context, meetingID string, u signaling.UpdatePayload) (signaling.ParticipantPayload, error) {
	p, err := s.Get(ctx, meetingID, u.ParticipantID)
	if err != nil {
		return signaling.ParticipantPayload{}, err
	}
	applyUpdate(&p, u)
	if err := s.put(ctx, meetingID, p); err != nil {
		return signaling.ParticipantPayload{}, err
	}
	return p, nil
}

// Remove deletes one participant record.
func (s *RedisStore) Remove(ctx context.Context, meetingID, participantID string) error {
	return s.rdb.HDel(ctx, meetingKey(meetingID), participantID).Err()
}

// End deletes the whole meeting.
func (s *RedisStore) End(ctx context.Context, meetingID string) error {
	return s.rdb.Del(ctx, meetingKey(meetingID)).Err()
}

func (s *RedisStore) put(ctx context.Context, meetingID string, p signaling.ParticipantPayload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.HSet(ctx, meetingKey(meetingID), p.ID, b).Err()
}

func applyUpdate(p *signaling.ParticipantPayload, u signaling.UpdatePayload) {
	if u.DisplayName != nil {
		p.UserName = *u.DisplayName
	}
	if u.PeerID != nil {
		p.PeerID = *u.PeerID
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.IsMuted != nil {
		p.IsMuted = *u.IsMuted
	}
	if u.IsVideoOn != nil {
		p.IsVideoOn = *u.IsVideoOn
	}
	if u.IsScreenSharing != nil {
		p.IsScreenShared = *u.IsScreenSharing
	}
	if u.IsHandRaised != nil {
		p.IsHandRaised = *u.IsHandRaised
	}
}
