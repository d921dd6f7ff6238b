package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/middleware"
	"gowork_messaging/internal/service"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

type stubMessageService struct {
	sendFn func(ctx context.Context, conversationID, senderID uuid.UUID, content string, attachments []domain.Attachment, idempotencyKey *string) (*domain.Message, error)
	listFn func(ctx context.Context, conversationID, requesterID uuid.UUID, page service.ListMessagesPage) ([]*domain.Message, error)
}

func (s *stubMessageService) Send(ctx context.Context, conversationID, senderID uuid.UUID, content string, attachments []domain.Attachment, idempotencyKey *string) (*domain.Message, error) {
	return s.sendFn(ctx, conversationID, senderID, content, attachments, idempotencyKey)
}

func (s *stubMessageService) List(ctx context.Context, conversationID, requesterID uuid.UUID, page service.ListMessagesPage) ([]*domain.Message, error) {
	return s.listFn(ctx, conversationID, requesterID, page)
}

type stubReadService struct {
	markReadFn func(ctx context.Context, conversationID, participantID, upToMessageID uuid.UUID) (int, error)
}

func (s *stubReadService) MarkRead(ctx context.Context, conversationID, participantID, upToMessageID uuid.UUID) (int, error) {
	return s.markReadFn(ctx, conversationID, participantID, upToMessageID)
}

func newTestRouter(h *MessageHandler, participantID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	router.Use(func(c *gin.Context) {
		c.Set(middleware.ContextParticipantID, participantID)
		c.Next()
	})
	router.POST("/api/v1/conversations/:id/messages", h.Send)
	router.GET("/api/v1/conversations/:id/messages", h.List)
	router.POST("/api/v1/conversations/:id/read", h.MarkRead)
	return router
}

func TestSendHandlerCreated(t *testing.T) {
	sender := uuid.New()
	convID := uuid.New()

	svc := &stubMessageService{
		sendFn: func(_ context.Context, conversationID, senderID uuid.UUID, content string, _ []domain.Attachment, idempotencyKey *string) (*domain.Message, error) {
			assert.Equal(t, convID, conversationID)
			assert.Equal(t, sender, senderID)
			require.NotNil(t, idempotencyKey)
			assert.Equal(t, "retry-1", *idempotencyKey)
			msg, _ := domain.NewMessage(conversationID, senderID, content, nil)
			msg.Seq = 1
			return msg, nil
		},
	}
	h := NewMessageHandler(svc, &stubReadService{}, logger.NewNop())
	router := newTestRouter(h, sender)

	body, _ := json.Marshal(CreateMessageRequest{Content: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+convID.String()+"/messages", bytes.NewReader(body))
	req.Header.Set("X-Idempotency-Key", "retry-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var got domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, int64(1), got.Seq)
}

func TestSendHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not a participant", apperrors.ErrNotParticipant, http.StatusForbidden},
		{"conversation missing", apperrors.ErrConversationNotFound, http.StatusNotFound},
		{"empty message", apperrors.ErrEmptyMessage, http.StatusBadRequest},
		{"duplicate key", apperrors.ErrDuplicateMessage, http.StatusConflict},
		{"store down", fmt.Errorf("append: %w", apperrors.ErrUnavailable), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubMessageService{
				sendFn: func(context.Context, uuid.UUID, uuid.UUID, string, []domain.Attachment, *string) (*domain.Message, error) {
					return nil, tt.err
				},
			}
			h := NewMessageHandler(svc, &stubReadService{}, logger.NewNop())
			router := newTestRouter(h, uuid.New())

			body, _ := json.Marshal(CreateMessageRequest{Content: "x"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+uuid.NewString()+"/messages", bytes.NewReader(body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestSendHandlerRejectsBadConversationID(t *testing.T) {
	h := NewMessageHandler(&stubMessageService{}, &stubReadService{}, logger.NewNop())
	router := newTestRouter(h, uuid.New())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/not-a-uuid/messages", bytes.NewReader([]byte(`{"content":"x"}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListHandlerParsesCursors(t *testing.T) {
	requester := uuid.New()
	convID := uuid.New()
	after := uuid.New()

	svc := &stubMessageService{
		listFn: func(_ context.Context, conversationID, requesterID uuid.UUID, page service.ListMessagesPage) ([]*domain.Message, error) {
			assert.Equal(t, convID, conversationID)
			assert.Equal(t, requester, requesterID)
			require.NotNil(t, page.After)
			assert.Equal(t, after, *page.After)
			assert.Equal(t, 10, page.Limit)
			return []*domain.Message{}, nil
		},
	}
	h := NewMessageHandler(svc, &stubReadService{}, logger.NewNop())
	router := newTestRouter(h, requester)

	url := "/api/v1/conversations/" + convID.String() + "/messages?after=" + after.String() + "&limit=10"
	req := httptest.NewRequest(http.MethodGet, url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMarkReadHandlerReturnsUnreadCount(t *testing.T) {
	participant := uuid.New()
	convID := uuid.New()
	upTo := uuid.New()

	read := &stubReadService{
		markReadFn: func(_ context.Context, conversationID, participantID, upToMessageID uuid.UUID) (int, error) {
			assert.Equal(t, convID, conversationID)
			assert.Equal(t, participant, participantID)
			assert.Equal(t, upTo, upToMessageID)
			return 3, nil
		},
	}
	h := NewMessageHandler(&stubMessageService{}, read, logger.NewNop())
	router := newTestRouter(h, participant)

	body, _ := json.Marshal(MarkReadRequest{UpToMessageID: upTo})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/"+convID.String()+"/read", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		UnreadCount int `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.UnreadCount)
}
