package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/notify"
	"gowork_messaging/pkg/logger"
)

func TestHubDeliversToRecipientsOnly(t *testing.T) {
	hub := NewHub(logger.NewNop())

	recipient := uuid.New()
	sender := uuid.New()

	recipientClient := NewClient(hub, nil, recipient, logger.NewNop())
	senderClient := NewClient(hub, nil, sender, logger.NewNop())
	hub.Register(recipientClient)
	hub.Register(senderClient)

	convID := uuid.New()
	msg, err := domain.NewMessage(convID, sender, "hello", nil)
	require.NoError(t, err)

	require.NoError(t, hub.Notify(context.Background(), convID, msg, []uuid.UUID{recipient}))

	select {
	case payload := <-recipientClient.send:
		var event notify.MessageSentEvent
		require.NoError(t, json.Unmarshal(payload, &event))
		assert.Equal(t, convID, event.ConversationID)
		assert.Equal(t, "hello", event.Message.Content)
	default:
		t.Fatal("recipient did not receive the event")
	}

	select {
	case <-senderClient.send:
		t.Fatal("sender must not be notified about their own message")
	default:
	}
}

func TestHubConnectedTracksRegistrations(t *testing.T) {
	hub := NewHub(logger.NewNop())
	id := uuid.New()

	first := NewClient(hub, nil, id, logger.NewNop())
	second := NewClient(hub, nil, id, logger.NewNop())

	assert.False(t, hub.Connected(id))

	hub.Register(first)
	hub.Register(second)
	assert.True(t, hub.Connected(id))

	hub.Unregister(first)
	assert.True(t, hub.Connected(id))

	hub.Unregister(second)
	assert.False(t, hub.Connected(id))
}
