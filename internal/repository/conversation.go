package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

// ConversationRecord is the storage-level view of a conversation. The service
// layer composes it with the user directory, presence and message rows into
// the API-facing shape.
type ConversationRecord struct {
	ID             uuid.UUID
	ParticipantKey string
	ParticipantIDs []uuid.UUID
	ServiceID      *uuid.UUID
	ServiceName    *string
	LastMessageID  *uuid.UUID
	LastSeq        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ConversationRepository interface {
	// CreateOrGet inserts the conversation keyed by its participant key, or
	// returns the existing row when another request got there first. The
	// returned bool reports whether a new row was created.
	CreateOrGet(ctx context.Context, rec *ConversationRecord) (*ConversationRecord, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ConversationRecord, error)
	ListByParticipant(ctx context.Context, participantID uuid.UUID) ([]*ConversationRecord, error)
	UnreadCount(ctx context.Context, conversationID, participantID uuid.UUID) (int, error)
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

func (r *conversationRepository) CreateOrGet(ctx context.Context, rec *ConversationRecord) (*ConversationRecord, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, mapStoreError(err)
	}
	defer tx.Rollback(ctx)

	// ON CONFLICT DO NOTHING + re-read keeps concurrent creators converging
	// on a single row without ever overwriting it.
	insert := `
		INSERT INTO conversations (id, participant_key, service_id, service_name, last_seq, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, NOW(), NOW())
		ON CONFLICT (participant_key) DO NOTHING
		RETURNING id
	`

	var insertedID uuid.UUID
	err = tx.QueryRow(ctx, insert, rec.ID, rec.ParticipantKey, rec.ServiceID, rec.ServiceName).Scan(&insertedID)
	created := true
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.log.Error("Failed to create conversation", "error", err)
			return nil, false, mapStoreError(err)
		}
		created = false
	}

	if created {
		for _, pid := range rec.ParticipantIDs {
			_, err = tx.Exec(ctx, `
				INSERT INTO conversation_participants (conversation_id, participant_id, joined_at)
				VALUES ($1, $2, NOW())
			`, rec.ID, pid)
			if err != nil {
				r.log.Error("Failed to add participant", "error", err, "conversation_id", rec.ID)
				return nil, false, mapStoreError(err)
			}
		}
	}

	var row *ConversationRecord
	row, err = r.getByKey(ctx, tx, rec.ParticipantKey)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, mapStoreError(err)
	}

	return row, created, nil
}

// Participant ids travel as text[] because the default pgx type map has no
// array codec for uuid.UUID values.
func parseParticipantIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse participant id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *conversationRepository) getByKey(ctx context.Context, tx pgx.Tx, key string) (*ConversationRecord, error) {
	query := `
		SELECT c.id, c.participant_key, c.service_id, c.service_name, c.last_message_id,
		       c.last_seq, c.created_at, c.updated_at,
		       ARRAY(SELECT participant_id::text FROM conversation_participants cp
		             WHERE cp.conversation_id = c.id ORDER BY cp.joined_at) AS participant_ids
		FROM conversations c
		WHERE c.participant_key = $1
	`

	rec := &ConversationRecord{}
	var rawIDs []string
	err := tx.QueryRow(ctx, query, key).Scan(
		&rec.ID, &rec.ParticipantKey, &rec.ServiceID, &rec.ServiceName,
		&rec.LastMessageID, &rec.LastSeq, &rec.CreatedAt, &rec.UpdatedAt,
		&rawIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: key %s", apperrors.ErrConversationNotFound, key)
		}
		r.log.Error("Failed to get conversation by key", "error", err)
		return nil, mapStoreError(err)
	}

	if rec.ParticipantIDs, err = parseParticipantIDs(rawIDs); err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*ConversationRecord, error) {
	query := `
		SELECT c.id, c.participant_key, c.service_id, c.service_name, c.last_message_id,
		       c.last_seq, c.created_at, c.updated_at,
		       ARRAY(SELECT participant_id::text FROM conversation_participants cp
		             WHERE cp.conversation_id = c.id ORDER BY cp.joined_at) AS participant_ids
		FROM conversations c
		WHERE c.id = $1
	`

	rec := &ConversationRecord{}
	var rawIDs []string
	err := r.db.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.ParticipantKey, &rec.ServiceID, &rec.ServiceName,
		&rec.LastMessageID, &rec.LastSeq, &rec.CreatedAt, &rec.UpdatedAt,
		&rawIDs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, id)
		}
		r.log.Error("Failed to get conversation", "error", err, "conversation_id", id)
		return nil, mapStoreError(err)
	}

	if rec.ParticipantIDs, err = parseParticipantIDs(rawIDs); err != nil {
		return nil, err
	}

	return rec, nil
}

func (r *conversationRepository) ListByParticipant(ctx context.Context, participantID uuid.UUID) ([]*ConversationRecord, error) {
	query := `
		SELECT c.id, c.participant_key, c.service_id, c.service_name, c.last_message_id,
		       c.last_seq, c.created_at, c.updated_at,
		       ARRAY(SELECT participant_id::text FROM conversation_participants cp2
		             WHERE cp2.conversation_id = c.id ORDER BY cp2.joined_at) AS participant_ids
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.participant_id = $1
		ORDER BY c.updated_at DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err, "participant_id", participantID)
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var recs []*ConversationRecord
	for rows.Next() {
		rec := &ConversationRecord{}
		var rawIDs []string
		err := rows.Scan(
			&rec.ID, &rec.ParticipantKey, &rec.ServiceID, &rec.ServiceName,
			&rec.LastMessageID, &rec.LastSeq, &rec.CreatedAt, &rec.UpdatedAt,
			&rawIDs,
		)
		if err != nil {
			r.log.Error("Failed to scan conversation", "error", err)
			return nil, mapStoreError(err)
		}
		if rec.ParticipantIDs, err = parseParticipantIDs(rawIDs); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// UnreadCount recomputes the count from message rows, never from a cached
// counter, so it cannot drift from the underlying read state.
func (r *conversationRepository) UnreadCount(ctx context.Context, conversationID, participantID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages
		WHERE conversation_id = $1 AND sender_id != $2 AND read_at IS NULL
	`

	var count int
	err := r.db.QueryRow(ctx, query, conversationID, participantID).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count unread messages", "error", err, "conversation_id", conversationID)
		return 0, mapStoreError(err)
	}

	return count, nil
}
