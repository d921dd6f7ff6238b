package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gowork_messaging/pkg/logger"
)

// presenceTTL bounds how long a participant counts as online without a
// refresh from an active connection.
const presenceTTL = 90 * time.Second

type Presence struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type PresenceRepository interface {
	SetOnline(ctx context.Context, participantID uuid.UUID) error
	SetOffline(ctx context.Context, participantID uuid.UUID) error
	Get(ctx context.Context, participantID uuid.UUID) (Presence, error)
	GetMany(ctx context.Context, participantIDs []uuid.UUID) (map[uuid.UUID]Presence, error)
}

type presenceRepository struct {
	redis *redis.Client
	log   logger.Logger
}

func NewPresenceRepository(rdb *redis.Client, log logger.Logger) PresenceRepository {
	return &presenceRepository{redis: rdb, log: log}
}

func presenceKey(id uuid.UUID) string {
	return "presence:" + id.String()
}

type presenceRecord struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func (r *presenceRepository) SetOnline(ctx context.Context, participantID uuid.UUID) error {
	b, _ := json.Marshal(presenceRecord{Status: "online", LastSeen: time.Now().Unix()})
	err := r.redis.Set(ctx, presenceKey(participantID), b, presenceTTL).Err()
	if err != nil {
		r.log.Error("Failed to set presence", "error", err, "participant_id", participantID)
	}
	return err
}

func (r *presenceRepository) SetOffline(ctx context.Context, participantID uuid.UUID) error {
	b, _ := json.Marshal(presenceRecord{Status: "offline", LastSeen: time.Now().Unix()})
	// No TTL: the offline record keeps last_seen available until the next
	// connection overwrites it.
	err := r.redis.Set(ctx, presenceKey(participantID), b, 0).Err()
	if err != nil {
		r.log.Error("Failed to set presence offline", "error", err, "participant_id", participantID)
	}
	return err
}

func (r *presenceRepository) Get(ctx context.Context, participantID uuid.UUID) (Presence, error) {
	b, err := r.redis.Get(ctx, presenceKey(participantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Presence{}, nil
	}
	if err != nil {
		r.log.Error("Failed to get presence", "error", err, "participant_id", participantID)
		return Presence{}, err
	}

	var rec presenceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return Presence{}, err
	}

	ls := time.Unix(rec.LastSeen, 0).UTC()
	return Presence{Online: rec.Status == "online", LastSeen: &ls}, nil
}

// GetMany is best-effort: a Redis failure degrades to everyone-offline
// rather than failing the conversation fetch.
func (r *presenceRepository) GetMany(ctx context.Context, participantIDs []uuid.UUID) (map[uuid.UUID]Presence, error) {
	out := make(map[uuid.UUID]Presence, len(participantIDs))
	for _, id := range participantIDs {
		p, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		out[id] = p
	}
	return out, nil
}
