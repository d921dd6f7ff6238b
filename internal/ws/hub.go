package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/notify"
	"gowork_messaging/pkg/logger"
)

// Hub tracks connected clients per participant and delivers new-message
// events to them. It implements notify.Notifier so the message service can
// treat in-process WebSocket delivery like any other gateway.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	log     logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		log:     log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.participantID]; !ok {
		h.clients[c.participantID] = make(map[*Client]struct{})
	}
	h.clients[c.participantID][c] = struct{}{}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.participantID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, c.participantID)
		}
	}
}

// Connected reports whether the participant has at least one open socket.
func (h *Hub) Connected(participantID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[participantID]) > 0
}

func (h *Hub) Notify(_ context.Context, conversationID uuid.UUID, msg *domain.Message, recipientIDs []uuid.UUID) error {
	event := notify.MessageSentEvent{
		ConversationID: conversationID,
		Message:        msg,
		RecipientIDs:   recipientIDs,
		OccurredAt:     time.Now().UTC(),
	}

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range recipientIDs {
		for c := range h.clients[id] {
			c.Enqueue(b)
		}
	}

	return nil
}
