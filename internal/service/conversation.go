package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/repository"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

// InitialMessage is the first message delivered when a conversation is
// created. Conversations only come into existence with content in them.
type InitialMessage struct {
	Content        string
	Attachments    []domain.Attachment
	IdempotencyKey *string
}

type ConversationService interface {
	// Create finds or creates the conversation between initiator and
	// participant for the given listing context, then delivers the initial
	// message. The returned conversation reflects it in LastMessage.
	Create(ctx context.Context, initiatorID, participantID uuid.UUID, serviceID *uuid.UUID, serviceName *string, initial InitialMessage) (*domain.Conversation, error)
	Get(ctx context.Context, id, requesterID uuid.UUID) (*domain.Conversation, error)
	List(ctx context.Context, participantID uuid.UUID) ([]*domain.Conversation, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	userRepo         repository.UserRepository
	presenceRepo     repository.PresenceRepository
	messages         MessageService
	log              logger.Logger
}

func NewConversationService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	presenceRepo repository.PresenceRepository,
	messages MessageService,
	log logger.Logger,
) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		presenceRepo:     presenceRepo,
		messages:         messages,
		log:              log,
	}
}

func (s *conversationService) Create(ctx context.Context, initiatorID, participantID uuid.UUID, serviceID *uuid.UUID, serviceName *string, initial InitialMessage) (*domain.Conversation, error) {
	if initiatorID == participantID {
		return nil, fmt.Errorf("%w: cannot start a conversation with yourself", apperrors.ErrValidation)
	}

	// The counterpart must resolve to a known user before anything is created.
	if _, err := s.userRepo.GetByID(ctx, participantID); err != nil {
		return nil, err
	}

	rec := &repository.ConversationRecord{
		ID:             uuid.New(),
		ParticipantKey: domain.ParticipantKey(initiatorID, participantID, serviceID),
		ParticipantIDs: []uuid.UUID{initiatorID, participantID},
		ServiceID:      serviceID,
		ServiceName:    serviceName,
	}

	rec, created, err := s.conversationRepo.CreateOrGet(ctx, rec)
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("Conversation created", "conversation_id", rec.ID, "initiator_id", initiatorID, "participant_id", participantID)
	}

	if _, err := s.messages.Send(ctx, rec.ID, initiatorID, initial.Content, initial.Attachments, initial.IdempotencyKey); err != nil {
		return nil, err
	}

	// Re-read so LastMessage and UnreadCount reflect the initial message.
	rec, err = s.conversationRepo.GetByID(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	return s.compose(ctx, rec, initiatorID)
}

func (s *conversationService) Get(ctx context.Context, id, requesterID uuid.UUID) (*domain.Conversation, error) {
	rec, err := s.conversationRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !containsID(rec.ParticipantIDs, requesterID) {
		return nil, fmt.Errorf("%w: requester %s", apperrors.ErrNotParticipant, requesterID)
	}

	return s.compose(ctx, rec, requesterID)
}

func (s *conversationService) List(ctx context.Context, participantID uuid.UUID) ([]*domain.Conversation, error) {
	recs, err := s.conversationRepo.ListByParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}

	conversations := make([]*domain.Conversation, 0, len(recs))
	for _, rec := range recs {
		conv, err := s.compose(ctx, rec, participantID)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// compose assembles the API-facing conversation from the store record: the
// participant directory, presence, the denormalized last message and the
// unread count relative to the requester.
func (s *conversationService) compose(ctx context.Context, rec *repository.ConversationRecord, requesterID uuid.UUID) (*domain.Conversation, error) {
	users, err := s.userRepo.GetByIDs(ctx, rec.ParticipantIDs)
	if err != nil {
		return nil, err
	}

	presence, err := s.presenceRepo.GetMany(ctx, rec.ParticipantIDs)
	if err != nil {
		s.log.Warn("Presence lookup failed, reporting offline", "error", err, "conversation_id", rec.ID)
		presence = map[uuid.UUID]repository.Presence{}
	}

	participants := make([]domain.ParticipantSummary, 0, len(rec.ParticipantIDs))
	for _, id := range rec.ParticipantIDs {
		user, ok := users[id]
		if !ok {
			return nil, fmt.Errorf("%w: participant %s", apperrors.ErrParticipantNotFound, id)
		}
		summary := user.Summary()
		if p, ok := presence[id]; ok {
			summary.Online = p.Online
			if p.LastSeen != nil {
				summary.LastSeen = p.LastSeen
			}
		}
		participants = append(participants, summary)
	}

	conv := &domain.Conversation{
		ID:           rec.ID,
		Participants: participants,
		ServiceID:    rec.ServiceID,
		ServiceName:  rec.ServiceName,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}

	if rec.LastMessageID != nil {
		last, err := s.messageRepo.GetByID(ctx, rec.ID, *rec.LastMessageID)
		if err != nil {
			return nil, err
		}
		conv.LastMessage = last
	}

	unread, err := s.conversationRepo.UnreadCount(ctx, rec.ID, requesterID)
	if err != nil {
		return nil, err
	}
	conv.UnreadCount = unread

	return conv, nil
}
