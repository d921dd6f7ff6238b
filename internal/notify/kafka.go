package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"gowork_messaging/internal/domain"
)

// KafkaProducer publishes message-sent events for downstream consumers such
// as push-notification workers. Messages are keyed by conversation id so one
// conversation always lands on one partition, preserving order.
type KafkaProducer struct {
	writer *kafkago.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		Async:        false,
	}
	return &KafkaProducer{writer: w}
}

func (p *KafkaProducer) Notify(ctx context.Context, conversationID uuid.UUID, msg *domain.Message, recipientIDs []uuid.UUID) error {
	event := MessageSentEvent{
		ConversationID: conversationID,
		Message:        msg,
		RecipientIDs:   recipientIDs,
		OccurredAt:     time.Now().UTC(),
	}

	b, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(conversationID.String()),
		Value: b,
		Time:  event.OccurredAt,
	})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
