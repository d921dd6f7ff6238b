package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gowork_messaging/internal/middleware"
	"gowork_messaging/internal/repository"
	"gowork_messaging/internal/ws"
	"gowork_messaging/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens at the gateway in front of this service.
		return true
	},
}

const presenceRefreshInterval = 60 * time.Second

type WebSocketHandler struct {
	hub          *ws.Hub
	presenceRepo repository.PresenceRepository
	userRepo     repository.UserRepository
	log          logger.Logger
}

func NewWebSocketHandler(hub *ws.Hub, presenceRepo repository.PresenceRepository, userRepo repository.UserRepository, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:          hub,
		presenceRepo: presenceRepo,
		userRepo:     userRepo,
		log:          log,
	}
}

// Connect upgrades the request and keeps the participant registered for
// push delivery until the socket closes. Presence is refreshed while the
// connection lives and flipped to offline when the last socket drops.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	participantID, ok := middleware.ParticipantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err, "participant_id", participantID)
		return
	}

	ctx := c.Request.Context()
	if err := h.presenceRepo.SetOnline(ctx, participantID); err != nil {
		h.log.Warn("Failed to set presence online", "error", err, "participant_id", participantID)
	}

	client := ws.NewClient(h.hub, conn, participantID, h.log)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(presenceRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = h.presenceRepo.SetOnline(ctx, participantID)
			case <-stop:
				return
			}
		}
	}()

	client.Run()
	close(stop)

	// The request context may already be gone once the socket closes, so
	// teardown runs on its own deadline.
	teardownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if !h.hub.Connected(participantID) {
		if err := h.presenceRepo.SetOffline(teardownCtx, participantID); err != nil {
			h.log.Warn("Failed to set presence offline", "error", err, "participant_id", participantID)
		}
		if err := h.userRepo.TouchLastSeen(teardownCtx, participantID); err != nil {
			h.log.Warn("Failed to record last seen", "error", err, "participant_id", participantID)
		}
	}
}
