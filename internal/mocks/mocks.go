package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"ichat-sync/internal/models"
	"ichat-sync/internal/server/store"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) CreateChat(ctx context.Context, userID, friendID string) (models.ConversationSummary, error) {
	args := m.Called(ctx, userID, friendID)
	var summary models.ConversationSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.ConversationSummary)
	}
	return summary, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, name string, memberIDs []string) (models.ConversationSummary, error) {
	args := m.Called(ctx, name, memberIDs)
	var summary models.ConversationSummary
	if val := args.Get(0); val != nil {
		summary = val.(models.ConversationSummary)
	}
	return summary, args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *ConversationRepositoryMock) IsMember(ctx context.Context, ref models.ConversationRef, userID string) (bool, error) {
	args := m.Called(ctx, ref, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) Members(ctx context.Context, ref models.ConversationRef) ([]string, error) {
	args := m.Called(ctx, ref)
	var members []string
	if val := args.Get(0); val != nil {
		members = val.([]string)
	}
	return members, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Create(ctx context.Context, ref models.ConversationRef, senderID string, draft store.MessageDraft) (models.Message, error) {
	args := m.Called(ctx, ref, senderID, draft)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListForUser(ctx context.Context, ref models.ConversationRef, userID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, ref, userID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateContent(ctx context.Context, messageID, senderID, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, senderID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteForUser(ctx context.Context, messageID, userID string) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteForEveryone(ctx context.Context, messageID, senderID string) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) AddReaction(ctx context.Context, messageID string, reaction models.Reaction) error {
	args := m.Called(ctx, messageID, reaction)
	return args.Error(0)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, ref models.ConversationRef, messageIDs []string, userID string) ([]string, error) {
	args := m.Called(ctx, ref, messageIDs, userID)
	var updated []string
	if val := args.Get(0); val != nil {
		updated = val.([]string)
	}
	return updated, args.Error(1)
}

func (m *MessageRepositoryMock) SetPriority(ctx context.Context, messageID string, priority models.Priority) error {
	args := m.Called(ctx, messageID, priority)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SetTags(ctx context.Context, messageID string, tags []string) error {
	args := m.Called(ctx, messageID, tags)
	return args.Error(0)
}

type SubscriptionRepositoryMock struct {
	mock.Mock
}

func (m *SubscriptionRepositoryMock) Save(ctx context.Context, userID string, sub models.PushSubscriptionRecord) (models.PushSubscriptionRecord, error) {
	args := m.Called(ctx, userID, sub)
	var saved models.PushSubscriptionRecord
	if val := args.Get(0); val != nil {
		saved = val.(models.PushSubscriptionRecord)
	}
	return saved, args.Error(1)
}

func (m *SubscriptionRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.PushSubscriptionRecord, error) {
	args := m.Called(ctx, userID)
	var list []models.PushSubscriptionRecord
	if val := args.Get(0); val != nil {
		list = val.([]models.PushSubscriptionRecord)
	}
	return list, args.Error(1)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}
