package service

import (
	"gowork_messaging/internal/config"
	"gowork_messaging/internal/notify"
	"gowork_messaging/internal/repository"
	"gowork_messaging/pkg/logger"
)

type Services struct {
	Conversation ConversationService
	Message      MessageService
	Read         ReadService
	RateLimit    RateLimitService
}

func NewServices(repos *repository.Repositories, notifier notify.Notifier, cfg *config.Config, log logger.Logger) *Services {
	message := NewMessageService(repos.Message, repos.Conversation, notifier, log)

	return &Services{
		Conversation: NewConversationService(repos.Conversation, repos.Message, repos.User, repos.Presence, message, log),
		Message:      message,
		Read:         NewReadService(repos.Message, repos.Conversation, log),
		RateLimit:    NewRateLimitService(repos.RateLimit, log),
	}
}
