package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gowork_messaging/internal/domain"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

// MessagePage bounds a ListBySeq call. After and Before are sequence-number
// cursors; results are always returned in ascending sequence order.
type MessagePage struct {
	After  *int64
	Before *int64
	Limit  int
}

type MessageRepository interface {
	// Append inserts the message and updates the owning conversation's
	// summary (last_seq, last_message_id, updated_at) in one transaction.
	// The assigned sequence number is written back into msg.Seq.
	Append(ctx context.Context, msg *domain.Message, idempotencyKey *string) error
	GetByID(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error)
	ListBySeq(ctx context.Context, conversationID uuid.UUID, page MessagePage) ([]*domain.Message, error)
	// MarkReadUpTo stamps read_at on every unread message not sent by the
	// participant with seq <= upToSeq. Returns the number of rows updated.
	MarkReadUpTo(ctx context.Context, conversationID, participantID uuid.UUID, upToSeq int64) (int64, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func (r *messageRepository) Append(ctx context.Context, msg *domain.Message, idempotencyKey *string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return mapStoreError(err)
	}
	defer tx.Rollback(ctx)

	// The counter bump takes a row lock on the conversation, so concurrent
	// sends serialize here and sequence numbers come out gap-free and unique.
	var seq int64
	err = tx.QueryRow(ctx, `
		UPDATE conversations
		SET last_seq = last_seq + 1
		WHERE id = $1
		RETURNING last_seq
	`, msg.ConversationID).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, msg.ConversationID)
		}
		r.log.Error("Failed to assign sequence number", "error", err, "conversation_id", msg.ConversationID)
		return mapStoreError(err)
	}

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, seq, sender_id, content, attachments, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, msg.ID, msg.ConversationID, seq, msg.SenderID, msg.Content, attachments, idempotencyKey, msg.CreatedAt,
	).Scan(&msg.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %v", apperrors.ErrDuplicateMessage, idempotencyKey)
		}
		r.log.Error("Failed to insert message", "error", err, "conversation_id", msg.ConversationID)
		return mapStoreError(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations
		SET last_message_id = $2, updated_at = NOW()
		WHERE id = $1
	`, msg.ConversationID, msg.ID)
	if err != nil {
		r.log.Error("Failed to update conversation summary", "error", err, "conversation_id", msg.ConversationID)
		return mapStoreError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapStoreError(err)
	}

	msg.Seq = seq
	return nil
}

const messageColumns = `id, conversation_id, seq, sender_id, content, attachments, read_at, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var attachments []byte
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.Seq, &msg.SenderID,
		&msg.Content, &attachments, &msg.ReadAt, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, fmt.Errorf("unmarshal attachments: %w", err)
		}
	}
	return msg, nil
}

func (r *messageRepository) GetByID(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND id = $2
	`

	msg, err := scanMessage(r.db.QueryRow(ctx, query, conversationID, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrMessageNotFound, messageID)
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, mapStoreError(err)
	}

	return msg, nil
}

func (r *messageRepository) ListBySeq(ctx context.Context, conversationID uuid.UUID, page MessagePage) ([]*domain.Message, error) {
	var (
		query string
		args  []interface{}
	)

	switch {
	case page.Before != nil:
		// Window ending just before the cursor; fetched descending then
		// reversed so callers always see ascending order.
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1 AND seq < $2
			ORDER BY seq DESC
			LIMIT $3
		`
		args = []interface{}{conversationID, *page.Before, page.Limit}
	case page.After != nil:
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1 AND seq > $2
			ORDER BY seq ASC
			LIMIT $3
		`
		args = []interface{}{conversationID, *page.After, page.Limit}
	default:
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE conversation_id = $1
			ORDER BY seq ASC
			LIMIT $2
		`
		args = []interface{}{conversationID, page.Limit}
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "conversation_id", conversationID)
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, mapStoreError(err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreError(err)
	}

	if page.Before != nil {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}

	return messages, nil
}

func (r *messageRepository) MarkReadUpTo(ctx context.Context, conversationID, participantID uuid.UUID, upToSeq int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, mapStoreError(err)
	}
	defer tx.Rollback(ctx)

	// Single range update: already-read rows are untouched (read_at IS NULL
	// guard), so re-invocations and racing calls never move a timestamp.
	tag, err := tx.Exec(ctx, `
		UPDATE messages
		SET read_at = $4
		WHERE conversation_id = $1 AND sender_id != $2 AND read_at IS NULL AND seq <= $3
	`, conversationID, participantID, upToSeq, time.Now().UTC())
	if err != nil {
		r.log.Error("Failed to mark messages read", "error", err, "conversation_id", conversationID)
		return 0, mapStoreError(err)
	}

	if tag.RowsAffected() > 0 {
		_, err = tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID)
		if err != nil {
			r.log.Error("Failed to bump conversation on read", "error", err, "conversation_id", conversationID)
			return 0, mapStoreError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, mapStoreError(err)
	}

	return tag.RowsAffected(), nil
}
