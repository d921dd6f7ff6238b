package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ParticipantSummary is the denormalized participant view embedded in
// conversation responses. Online and LastSeen come from the presence store,
// the rest from the user directory.
type ParticipantSummary struct {
	ID          uuid.UUID  `json:"id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	Online      bool       `json:"online"`
}

// Conversation is a thread between two participants, optionally scoped to a
// marketplace listing. LastMessage and UnreadCount are derived from message
// rows on every read; they are caches, never a second source of truth.
type Conversation struct {
	ID           uuid.UUID            `json:"id"`
	Participants []ParticipantSummary `json:"participants"`
	LastMessage  *Message             `json:"last_message,omitempty"`
	UnreadCount  int                  `json:"unread_count"`
	ServiceID    *uuid.UUID           `json:"service_id,omitempty"`
	ServiceName  *string              `json:"service_name,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// HasParticipant reports whether id belongs to the conversation.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// RecipientsFor returns every participant id except the sender. Used for
// notification fan-out.
func (c *Conversation) RecipientsFor(senderID uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, p := range c.Participants {
		if p.ID != senderID {
			out = append(out, p.ID)
		}
	}
	return out
}

// ParticipantKey builds the idempotency key for conversation creation: the
// sorted participant ids joined with the listing id (or "-" when unscoped).
// Two concurrent creation attempts for the same pair and listing collide on
// this key and converge on a single row.
func ParticipantKey(a, b uuid.UUID, serviceID *uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	svc := "-"
	if serviceID != nil {
		svc = serviceID.String()
	}
	return strings.Join(ids, ":") + ":" + svc
}
