package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/notify"
	"gowork_messaging/internal/repository"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ListMessagesPage carries the caller-facing pagination cursors. After and
// Before reference message ids; the service resolves them to sequence
// numbers, which are the stable total order within a conversation.
type ListMessagesPage struct {
	After  *uuid.UUID
	Before *uuid.UUID
	Limit  int
}

type MessageService interface {
	Send(ctx context.Context, conversationID, senderID uuid.UUID, content string, attachments []domain.Attachment, idempotencyKey *string) (*domain.Message, error)
	List(ctx context.Context, conversationID, requesterID uuid.UUID, page ListMessagesPage) ([]*domain.Message, error)
}

type messageService struct {
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	notifier         notify.Notifier
	log              logger.Logger
}

func NewMessageService(
	messageRepo repository.MessageRepository,
	conversationRepo repository.ConversationRepository,
	notifier notify.Notifier,
	log logger.Logger,
) MessageService {
	return &messageService{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		notifier:         notifier,
		log:              log,
	}
}

func (s *messageService) Send(ctx context.Context, conversationID, senderID uuid.UUID, content string, attachments []domain.Attachment, idempotencyKey *string) (*domain.Message, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !containsID(conv.ParticipantIDs, senderID) {
		return nil, fmt.Errorf("%w: sender %s", apperrors.ErrNotParticipant, senderID)
	}

	msg, err := domain.NewMessage(conversationID, senderID, content, attachments)
	if err != nil {
		return nil, err
	}

	err = s.messageRepo.Append(ctx, msg, idempotencyKey)
	if errors.Is(err, apperrors.ErrUnavailable) && idempotencyKey != nil {
		// One retry is safe: the idempotency key turns a possible double
		// insert into a conflict we can detect.
		s.log.Warn("Retrying message append after transient store failure", "conversation_id", conversationID)
		err = s.messageRepo.Append(ctx, msg, idempotencyKey)
	}
	if err != nil {
		return nil, err
	}

	// Persistence succeeded; delivery is best-effort from here on.
	recipients := recipientsExcept(conv.ParticipantIDs, senderID)
	if err := s.notifier.Notify(ctx, conversationID, msg, recipients); err != nil {
		s.log.Warn("Notification delivery failed", "error", err, "conversation_id", conversationID, "message_id", msg.ID)
	}

	return msg, nil
}

func (s *messageService) List(ctx context.Context, conversationID, requesterID uuid.UUID, page ListMessagesPage) ([]*domain.Message, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if !containsID(conv.ParticipantIDs, requesterID) {
		return nil, fmt.Errorf("%w: requester %s", apperrors.ErrNotParticipant, requesterID)
	}

	limit := page.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	repoPage := repository.MessagePage{Limit: limit}
	if page.After != nil {
		cursor, err := s.messageRepo.GetByID(ctx, conversationID, *page.After)
		if err != nil {
			return nil, err
		}
		repoPage.After = &cursor.Seq
	}
	if page.Before != nil {
		cursor, err := s.messageRepo.GetByID(ctx, conversationID, *page.Before)
		if err != nil {
			return nil, err
		}
		repoPage.Before = &cursor.Seq
	}

	return s.messageRepo.ListBySeq(ctx, conversationID, repoPage)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func recipientsExcept(ids []uuid.UUID, exclude uuid.UUID) []uuid.UUID {
	var out []uuid.UUID
	for _, v := range ids {
		if v != exclude {
			out = append(out, v)
		}
	}
	return out
}
