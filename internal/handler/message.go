package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/middleware"
	"gowork_messaging/internal/service"
	"gowork_messaging/pkg/logger"
)

type MessageHandler struct {
	messageService service.MessageService
	readService    service.ReadService
	log            logger.Logger
}

func NewMessageHandler(messageService service.MessageService, readService service.ReadService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		readService:    readService,
		log:            log,
	}
}

type CreateMessageRequest struct {
	Content     string              `json:"content"`
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

func (h *MessageHandler) Send(c *gin.Context) {
	senderID, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var req CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var idempotencyKey *string
	if key := c.GetHeader("X-Idempotency-Key"); key != "" {
		idempotencyKey = &key
	}

	message, err := h.messageService.Send(
		c.Request.Context(), conversationID, senderID, req.Content, req.Attachments, idempotencyKey,
	)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) List(c *gin.Context) {
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

	page := service.ListMessagesPage{}
	if v := c.Query("after"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after cursor"})
			return
		}
		page.After = &id
	}
	if v := c.Query("before"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before cursor"})
			return
		}
		page.Before = &id
	}
	page.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.messageService.List(c.Request.Context(), conversationID, requesterID, page)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type MarkReadRequest struct {
	UpToMessageID uuid.UUID `json:"up_to_message_id" binding:"required"`
}

func (h *MessageHandler) MarkRead(c *gin.Context) {
	participantID, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	unread, err := h.readService.MarkRead(c.Request.Context(), conversationID, participantID, req.UpToMessageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": unread})
}
