// Package mocks provides testify mocks for the repository, service, and
// identity interfaces used across the service and handler tests.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"messaging-service/internal/identity"
	"messaging-service/internal/model"
	"messaging-service/internal/service"
)

// ConversationRepository mocks repo.ConversationRepository.
type ConversationRepository struct {
	mock.Mock
}

func (m *ConversationRepository) Create(ctx context.Context, conversation *model.Conversation) (*model.Conversation, error) {
	args := m.Called(ctx, conversation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepository) FindByDirectKey(ctx context.Context, key string) (*model.Conversation, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *ConversationRepository) UpdateAggregateOnSend(ctx context.Context, conversationID, messageID primitive.ObjectID, preview string, at time.Time) error {
	args := m.Called(ctx, conversationID, messageID, preview, at)
	return args.Error(0)
}

func (m *ConversationRepository) AppendParticipant(ctx context.Context, conversationID primitive.ObjectID, participant model.Participant) (bool, error) {
	args := m.Called(ctx, conversationID, participant)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepository) ReactivateParticipant(ctx context.Context, conversationID primitive.ObjectID, userID string, role string) (bool, error) {
	args := m.Called(ctx, conversationID, userID, role)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepository) DeactivateParticipant(ctx context.Context, conversationID primitive.ObjectID, userID string, leftAt time.Time) (bool, error) {
	args := m.Called(ctx, conversationID, userID, leftAt)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepository) Rename(ctx context.Context, conversationID primitive.ObjectID, name string) error {
	args := m.Called(ctx, conversationID, name)
	return args.Error(0)
}

func (m *ConversationRepository) SetArchived(ctx context.Context, conversationID primitive.ObjectID, userID string, archived bool) error {
	args := m.Called(ctx, conversationID, userID, archived)
	return args.Error(0)
}

func (m *ConversationRepository) UnarchiveForUsers(ctx context.Context, conversationID primitive.ObjectID, userIDs []string) error {
	args := m.Called(ctx, conversationID, userIDs)
	return args.Error(0)
}

func (m *ConversationRepository) PinMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

func (m *ConversationRepository) UnpinMessage(ctx context.Context, conversationID, messageID primitive.ObjectID) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

// MessageRepository mocks repo.MessageRepository.
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Insert(ctx context.Context, message *model.Message) (*model.Message, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepository) ListPage(ctx context.Context, conversationID primitive.ObjectID, before *primitive.ObjectID, limit int) ([]model.Message, bool, error) {
	args := m.Called(ctx, conversationID, before, limit)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).([]model.Message), args.Bool(1), args.Error(2)
}

func (m *MessageRepository) MarkRead(ctx context.Context, conversationID primitive.ObjectID, userID string, upTo *primitive.ObjectID) (int64, error) {
	args := m.Called(ctx, conversationID, userID, upTo)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepository) AddReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*model.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepository) RemoveReaction(ctx context.Context, messageID primitive.ObjectID, userID, emoji string) (*model.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageRepository) SetContent(ctx context.Context, messageID primitive.ObjectID, content string, editedAt time.Time) (bool, error) {
	args := m.Called(ctx, messageID, content, editedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepository) SoftDelete(ctx context.Context, messageID primitive.ObjectID, actorID string, deletedAt time.Time) error {
	args := m.Called(ctx, messageID, actorID, deletedAt)
	return args.Error(0)
}

func (m *MessageRepository) CountUnread(ctx context.Context, conversationID primitive.ObjectID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}

// IdentityClient mocks identity.Client.
type IdentityClient struct {
	mock.Mock
}

func (m *IdentityClient) GetUser(ctx context.Context, id string) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

func (m *IdentityClient) BulkUsers(ctx context.Context, ids []string) ([]identity.User, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]identity.User), args.Error(1)
}

// ConversationService mocks service.ConversationService.
type ConversationService struct {
	mock.Mock
}

func (m *ConversationService) ResolveOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationService) CreateGroup(ctx context.Context, creator string, participants []string, name string, settings *model.Settings) (*model.Conversation, error) {
	args := m.Called(ctx, creator, participants, name, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationService) Get(ctx context.Context, conversationID, callerID string) (*model.Conversation, error) {
	args := m.Called(ctx, conversationID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

func (m *ConversationService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

func (m *ConversationService) AddParticipant(ctx context.Context, conversationID, actorID, userID, role string) error {
	args := m.Called(ctx, conversationID, actorID, userID, role)
	return args.Error(0)
}

func (m *ConversationService) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	args := m.Called(ctx, conversationID, actorID, userID)
	return args.Error(0)
}

func (m *ConversationService) RenameGroup(ctx context.Context, conversationID, actorID, name string) error {
	args := m.Called(ctx, conversationID, actorID, name)
	return args.Error(0)
}

func (m *ConversationService) SetArchived(ctx context.Context, conversationID, userID string, archived bool) error {
	args := m.Called(ctx, conversationID, userID, archived)
	return args.Error(0)
}

func (m *ConversationService) PinMessage(ctx context.Context, conversationID, actorID, messageID string) error {
	args := m.Called(ctx, conversationID, actorID, messageID)
	return args.Error(0)
}

func (m *ConversationService) UnpinMessage(ctx context.Context, conversationID, actorID, messageID string) error {
	args := m.Called(ctx, conversationID, actorID, messageID)
	return args.Error(0)
}

// MessageService mocks service.MessageService.
type MessageService struct {
	mock.Mock
}

func (m *MessageService) Send(ctx context.Context, input service.SendInput) (*model.Message, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageService) List(ctx context.Context, conversationID, callerID, cursor string, limit int) (*service.MessagePage, error) {
	args := m.Called(ctx, conversationID, callerID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.MessagePage), args.Error(1)
}

func (m *MessageService) MarkRead(ctx context.Context, conversationID, userID, upToMessageID string) error {
	args := m.Called(ctx, conversationID, userID, upToMessageID)
	return args.Error(0)
}

func (m *MessageService) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageService) Edit(ctx context.Context, messageID, editorID, content string) (*model.Message, error) {
	args := m.Called(ctx, messageID, editorID, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MessageService) SoftDelete(ctx context.Context, messageID, actorID string) error {
	args := m.Called(ctx, messageID, actorID)
	return args.Error(0)
}

func (m *MessageService) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Get(0).(int64), args.Error(1)
}
