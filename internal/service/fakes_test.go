package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gowork_messaging/internal/domain"
	"gowork_messaging/internal/notify"
	"gowork_messaging/internal/repository"
	apperrors "gowork_messaging/pkg/errors"
	"gowork_messaging/pkg/logger"
)

func testLogger() logger.Logger { return logger.NewNop() }

// fakeStore is an in-memory stand-in for the Postgres repositories. It keeps
// the same contracts the real store guarantees: per-conversation sequence
// assignment under a lock, idempotency-key uniqueness, and range-based read
// marking that never regresses a timestamp.
type fakeStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
	convs map[uuid.UUID]*repository.ConversationRecord
	byKey map[string]uuid.UUID
	msgs  map[uuid.UUID][]*domain.Message
	keys  map[string]struct{} // conversation+sender+idempotency key
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[uuid.UUID]*domain.User),
		convs: make(map[uuid.UUID]*repository.ConversationRecord),
		byKey: make(map[string]uuid.UUID),
		msgs:  make(map[uuid.UUID][]*domain.Message),
		keys:  make(map[string]struct{}),
	}
}

func (f *fakeStore) addUser(name string) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	now := time.Now().UTC()
	f.users[id] = &domain.User{ID: id, DisplayName: name, CreatedAt: now, UpdatedAt: now}
	return id
}

// UserRepository

func (f *fakeStore) Upsert(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := f.users[user.ID]; ok {
		existing.DisplayName = user.DisplayName
		existing.UpdatedAt = now
		return nil
	}
	u := *user
	u.CreatedAt = now
	u.UpdatedAt = now
	f.users[user.ID] = &u
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", apperrors.ErrParticipantNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeStore) TouchLastSeen(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		now := time.Now().UTC()
		u.LastSeenAt = &now
	}
	return nil
}

// ConversationRepository

func (f *fakeStore) CreateOrGet(_ context.Context, rec *repository.ConversationRecord) (*repository.ConversationRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.byKey[rec.ParticipantKey]; ok {
		cp := f.copyConvLocked(id)
		return cp, false, nil
	}
	now := time.Now().UTC()
	stored := *rec
	stored.CreatedAt = now
	stored.UpdatedAt = now
	f.convs[rec.ID] = &stored
	f.byKey[rec.ParticipantKey] = rec.ID
	cp := f.copyConvLocked(rec.ID)
	return cp, true, nil
}

func (f *fakeStore) GetConvByID(ctx context.Context, id uuid.UUID) (*repository.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.convs[id]; !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, id)
	}
	return f.copyConvLocked(id), nil
}

func (f *fakeStore) ListByParticipant(_ context.Context, participantID uuid.UUID) ([]*repository.ConversationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.ConversationRecord
	for id, rec := range f.convs {
		for _, pid := range rec.ParticipantIDs {
			if pid == participantID {
				out = append(out, f.copyConvLocked(id))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) UnreadCount(_ context.Context, conversationID, participantID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, m := range f.msgs[conversationID] {
		if m.SenderID != participantID && m.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) copyConvLocked(id uuid.UUID) *repository.ConversationRecord {
	rec := f.convs[id]
	cp := *rec
	cp.ParticipantIDs = append([]uuid.UUID(nil), rec.ParticipantIDs...)
	return &cp
}

// MessageRepository

func (f *fakeStore) Append(_ context.Context, msg *domain.Message, idempotencyKey *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[msg.ConversationID]
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrConversationNotFound, msg.ConversationID)
	}
	if idempotencyKey != nil {
		key := msg.ConversationID.String() + "/" + msg.SenderID.String() + "/" + *idempotencyKey
		if _, dup := f.keys[key]; dup {
			return fmt.Errorf("%w: %s", apperrors.ErrDuplicateMessage, *idempotencyKey)
		}
		f.keys[key] = struct{}{}
	}
	conv.LastSeq++
	msg.Seq = conv.LastSeq
	stored := *msg
	stored.Attachments = append([]domain.Attachment(nil), msg.Attachments...)
	f.msgs[msg.ConversationID] = append(f.msgs[msg.ConversationID], &stored)
	lastID := msg.ID
	conv.LastMessageID = &lastID
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) GetMsgByID(_ context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs[conversationID] {
		if m.ID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrMessageNotFound, messageID)
}

func (f *fakeStore) ListBySeq(_ context.Context, conversationID uuid.UUID, page repository.MessagePage) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]*domain.Message(nil), f.msgs[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Seq < msgs[j].Seq })

	var filtered []*domain.Message
	for _, m := range msgs {
		if page.After != nil && m.Seq <= *page.After {
			continue
		}
		if page.Before != nil && m.Seq >= *page.Before {
			continue
		}
		filtered = append(filtered, m)
	}

	if page.Before != nil && len(filtered) > page.Limit {
		filtered = filtered[len(filtered)-page.Limit:]
	} else if len(filtered) > page.Limit {
		filtered = filtered[:page.Limit]
	}

	out := make([]*domain.Message, 0, len(filtered))
	for _, m := range filtered {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) MarkReadUpTo(_ context.Context, conversationID, participantID uuid.UUID, upToSeq int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var updated int64
	for _, m := range f.msgs[conversationID] {
		if m.SenderID != participantID && m.ReadAt == nil && m.Seq <= upToSeq {
			readAt := now
			m.ReadAt = &readAt
			updated++
		}
	}
	if updated > 0 {
		if conv, ok := f.convs[conversationID]; ok {
			conv.UpdatedAt = now
		}
	}
	return updated, nil
}

// convRepoView and msgRepoView disambiguate the overlapping GetByID methods.

type convRepoView struct{ *fakeStore }

func (v convRepoView) GetByID(ctx context.Context, id uuid.UUID) (*repository.ConversationRecord, error) {
	return v.GetConvByID(ctx, id)
}

type msgRepoView struct{ *fakeStore }

func (v msgRepoView) GetByID(ctx context.Context, conversationID, messageID uuid.UUID) (*domain.Message, error) {
	return v.GetMsgByID(ctx, conversationID, messageID)
}

// PresenceRepository

type fakePresence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[uuid.UUID]bool)}
}

func (f *fakePresence) SetOnline(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[id] = true
	return nil
}

func (f *fakePresence) SetOffline(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[id] = false
	return nil
}

func (f *fakePresence) Get(_ context.Context, id uuid.UUID) (repository.Presence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return repository.Presence{Online: f.online[id]}, nil
}

func (f *fakePresence) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]repository.Presence, error) {
	out := make(map[uuid.UUID]repository.Presence, len(ids))
	for _, id := range ids {
		p, _ := f.Get(ctx, id)
		out[id] = p
	}
	return out, nil
}

// Notifiers

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notify.MessageSentEvent
}

func (n *recordingNotifier) Notify(_ context.Context, conversationID uuid.UUID, msg *domain.Message, recipients []uuid.UUID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notify.MessageSentEvent{
		ConversationID: conversationID,
		Message:        msg,
		RecipientIDs:   recipients,
	})
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, uuid.UUID, *domain.Message, []uuid.UUID) error {
	return fmt.Errorf("gateway down")
}

// newTestServices wires the service layer over the fake store.
func newTestServices(store *fakeStore, notifier notify.Notifier) *Services {
	log := testLogger()
	msgRepo := msgRepoView{store}
	convRepo := convRepoView{store}
	message := NewMessageService(msgRepo, convRepo, notifier, log)
	return &Services{
		Conversation: NewConversationService(convRepo, msgRepo, store, newFakePresence(), message, log),
		Message:      message,
		Read:         NewReadService(msgRepo, convRepo, log),
	}
}
