package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gowork_messaging/internal/repository"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

type ReadService interface {
	// MarkRead stamps read timestamps on every unread message up to and
	// including upToMessageID that the participant did not send, then
	// returns the recomputed unread count. Idempotent: replaying the same
	// or an earlier cursor changes nothing.
	MarkRead(ctx context.Context, conversationID, participantID, upToMessageID uuid.UUID) (int, error)
}

type readService struct {
	messageRepo      repository.MessageRepository
	conversationRepo repository.ConversationRepository
	log              logger.Logger
}

func NewReadService(messageRepo repository.MessageRepository, conversationRepo repository.ConversationRepository, log logger.Logger) ReadService {
	return &readService{
		messageRepo:      messageRepo,
		conversationRepo: conversationRepo,
		log:              log,
	}
}

func (s *readService) MarkRead(ctx context.Context, conversationID, participantID, upToMessageID uuid.UUID) (int, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	if !containsID(conv.ParticipantIDs, participantID) {
		return 0, fmt.Errorf("%w: participant %s", apperrors.ErrNotParticipant, participantID)
	}

	cursor, err := s.messageRepo.GetByID(ctx, conversationID, upToMessageID)
	if err != nil {
		return 0, err
	}

	updated, err := s.messageRepo.MarkReadUpTo(ctx, conversationID, participantID, cursor.Seq)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.log.Debug("Messages marked read", "conversation_id", conversationID, "participant_id", participantID, "count", updated)
	}

	return s.conversationRepo.UnreadCount(ctx, conversationID, participantID)
}
