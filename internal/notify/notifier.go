package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/pkg/logger"
)

// Notifier is the delivery gateway the message service calls after a
// successful write. Delivery is best-effort: implementations may fail without
// affecting the persisted message, so callers only log errors.
type Notifier interface {
	Notify(ctx context.Context, conversationID uuid.UUID, msg *domain.Message, recipientIDs []uuid.UUID) error
}

// MessageSentEvent is the payload pushed to every gateway implementation.
type MessageSentEvent struct {
	ConversationID uuid.UUID       `json:"conversation_id"`
	Message        *domain.Message `json:"message"`
	RecipientIDs   []uuid.UUID     `json:"recipient_ids"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// Fanout dispatches to every configured gateway. A failing gateway does not
// stop the others; the first error is reported for logging.
type Fanout struct {
	targets []Notifier
	log     logger.Logger
}

func NewFanout(log logger.Logger, targets ...Notifier) *Fanout {
	return &Fanout{targets: targets, log: log}
}

func (f *Fanout) Notify(ctx context.Context, conversationID uuid.UUID, msg *domain.Message, recipientIDs []uuid.UUID) error {
	var first error
	for _, t := range f.targets {
		if err := t.Notify(ctx, conversationID, msg, recipientIDs); err != nil {
			f.log.Warn("Notification target failed", "error", err, "conversation_id", conversationID)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
