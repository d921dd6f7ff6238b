package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gowork_messaging/internal/domain"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

type UserRepository interface {
	Upsert(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error)
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

// Upsert provisions a user row from upstream identity claims. Display name
// and avatar follow the claims on every request so renames propagate.
func (r *userRepository) Upsert(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, display_name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query, user.ID, user.DisplayName, user.AvatarURL).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		r.log.Error("Failed to upsert user", "error", err, "user_id", user.ID)
		return mapStoreError(err)
	}

	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `
		SELECT id, display_name, avatar_url, last_seen_at, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	user := &domain.User{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.DisplayName, &user.AvatarURL,
		&user.LastSeenAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", apperrors.ErrParticipantNotFound, id)
		}
		r.log.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, mapStoreError(err)
	}

	return user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	query := `
		SELECT id, display_name, avatar_url, last_seen_at, created_at, updated_at
		FROM users
		WHERE id = ANY($1::uuid[])
	`

	// Array parameters go over the wire as text[], same as the participant
	// id columns on the conversation queries.
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = id.String()
	}

	rows, err := r.db.Query(ctx, query, idStrs)
	if err != nil {
		r.log.Error("Failed to get users", "error", err)
		return nil, mapStoreError(err)
	}
	defer rows.Close()

	users := make(map[uuid.UUID]*domain.User, len(ids))
	for rows.Next() {
		user := &domain.User{}
		err := rows.Scan(
			&user.ID, &user.DisplayName, &user.AvatarURL,
			&user.LastSeenAt, &user.CreatedAt, &user.UpdatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan user", "error", err)
			return nil, mapStoreError(err)
		}
		users[user.ID] = user
	}

	return users, rows.Err()
}

func (r *userRepository) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET last_seen_at = $2 WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		r.log.Error("Failed to touch last seen", "error", err, "user_id", id)
		return mapStoreError(err)
	}

	return nil
}
