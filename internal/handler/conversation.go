package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/middleware"
	"gowork_messaging/internal/service"
	"gowork_messaging/pkg/logger"
)

type ConversationHandler struct {
	conversationService service.ConversationService
	log                 logger.Logger
}

func NewConversationHandler(conversationService service.ConversationService, log logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		log:                 log,
	}
}

type InitialMessageRequest struct {
	Content     string              `json:"content"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

type CreateConversationRequest struct {
	ParticipantID  uuid.UUID             `json:"participant_id" binding:"required"`
	ServiceID      *uuid.UUID            `json:"service_id,omitempty"`
	ServiceName    *string               `json:"service_name,omitempty"`
	InitialMessage InitialMessageRequest `json:"initial_message" binding:"required"`
}

func (h *ConversationHandler) Create(c *gin.Context) {
	initiatorID, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	initial := service.InitialMessage{
		Content:     req.InitialMessage.Content,
		Attachments: req.InitialMessage.Attachments,
	}
	if key := c.GetHeader("X-Idempotency-Key"); key != "" {
		initial.IdempotencyKey = &key
	}

	conversation, err := h.conversationService.Create(
		c.Request.Context(), initiatorID, req.ParticipantID, req.ServiceID, req.ServiceName, initial,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

func (h *ConversationHandler) Get(c *gin.Context) {
	requesterID, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	conversation, err := h.conversationService.Get(c.Request.Context(), conversationID, requesterID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

func (h *ConversationHandler) List(c *gin.Context) {
	participantID, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversations, err := h.conversationService.List(c.Request.Context(), participantID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}
