package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a participant known to the messaging service. Rows are provisioned
// automatically from upstream identity claims on first request; the password
// and the rest of the account live in the auth service.
type User struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	LastSeenAt  *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (u *User) Summary() ParticipantSummary {
	return ParticipantSummary{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		LastSeen:    u.LastSeenAt,
	}
}
