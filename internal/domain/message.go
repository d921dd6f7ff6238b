package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"gowork_messaging/pkg/errors"
)

const (
	AttachmentTypeImage    = "image"
	AttachmentTypeDocument = "document"
	AttachmentTypeAudio    = "audio"
)

// Attachment references an already-uploaded file. The service never stores
// binary content, only the URL handed out by the upload pipeline.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
	Size *int64 `json:"size,omitempty"`
}

func (a Attachment) Validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return errors.ErrValidation
	}
	if strings.TrimSpace(a.Name) == "" {
		return errors.ErrValidation
	}
	switch a.Type {
	case AttachmentTypeImage, AttachmentTypeDocument, AttachmentTypeAudio:
	default:
		return errors.ErrValidation
	}
	if a.Size != nil && *a.Size < 0 {
		return errors.ErrValidation
	}
	return nil
}

// Message is an immutable entry in a conversation. Seq is assigned by the
// store at insert time and establishes the total order used by pagination
// cursors; CreatedAt alone is not unique under concurrent sends.
type Message struct {
	ID             uuid.UUID    `json:"id"`
	ConversationID uuid.UUID    `json:"conversation_id"`
	Seq            int64        `json:"seq"`
	SenderID       uuid.UUID    `json:"sender_id"`
	Content        string       `json:"content"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// NewMessage validates and normalizes a message before it reaches the store.
// Content may be empty only when at least one attachment is present.
func NewMessage(conversationID, senderID uuid.UUID, content string, attachments []Attachment) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && len(attachments) == 0 {
		return nil, errors.ErrEmptyMessage
	}
	for _, a := range attachments {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}

	return &Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
