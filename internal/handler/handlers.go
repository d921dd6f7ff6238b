package handler

import (
	"gowork_messaging/internal/repository"
	"gowork_messaging/internal/service"
	"gowork_messaging/internal/ws"
	"gowork_messaging/pkg/logger"
)

type Handlers struct {
	Health       *HealthHandler
	Conversation *ConversationHandler
	Message      *MessageHandler
	WebSocket    *WebSocketHandler
}

func NewHandlers(services *service.Services, repos *repository.Repositories, hub *ws.Hub, log logger.Logger) *Handlers {
	return &Handlers{
		Health:       NewHealthHandler(),
		Conversation: NewConversationHandler(services.Conversation, log),
		Message:      NewMessageHandler(services.Message, services.Read, log),
		WebSocket:    NewWebSocketHandler(hub, repos.Presence, repos.User, log),
	}
}
