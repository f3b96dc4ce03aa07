package service

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"messaging-service/internal/apperr"
	"messaging-service/internal/model"
	"messaging-service/internal/observability"
	"messaging-service/internal/repo"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

var validMessageTypes = map[string]bool{
	model.MessageText:  true,
	model.MessageImage: true,
	model.MessageFile:  true,
	model.MessageAudio: true,
	model.MessageVideo: true,
}

// SendInput carries everything needed to persist one message.
type SendInput struct {
	ConversationID string
	Sender         string
	Type           string
	Content        string
	Attachments    []model.Attachment
	ReplyTo        string
}

// MessagePage is one page of history, newest first.
type MessagePage struct {
	Messages   []model.Message `json:"messages"`
	NextCursor string          `json:"nextCursor,omitempty"`
	HasMore    bool            `json:"hasMore"`
}

// MessageService is the message store: the delivery state machine, read
// receipts, reactions, edits and soft deletion — plus the derived unread
// counter, which is computed on demand and never materialized.
type MessageService interface {
	Send(ctx context.Context, input SendInput) (*model.Message, error)
	List(ctx context.Context, conversationID, callerID, cursor string, limit int) (*MessagePage, error)
	MarkRead(ctx context.Context, conversationID, userID, upToMessageID string) error
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, error)
	Edit(ctx context.Context, messageID, editorID, content string) (*model.Message, error)
	SoftDelete(ctx context.Context, messageID, actorID string) error
	UnreadCount(ctx context.Context, conversationID, userID string) (int64, error)
}

type messageService struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	logger        *zap.Logger
}

func NewMessageService(messages repo.MessageRepository, conversations repo.ConversationRepository, logger *zap.Logger) MessageService {
	return &messageService{
		messages:      messages,
		conversations: conversations,
		logger:        logger,
	}
}

// Send validates everything before any write, inserts the message with
// status "sent" ("sending" is a client-side placeholder, never persisted),
// then updates the conversation aggregate atomically.
func (s *messageService) Send(ctx context.Context, input SendInput) (*model.Message, error) {
	conversation, err := s.fetchConversation(ctx, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(input.Sender) {
		return nil, apperr.Forbidden("user %s is not an active participant", input.Sender)
	}
	if conversation.Settings.AdminOnlyMessages && !conversation.IsAdmin(input.Sender) {
		return nil, apperr.Forbidden("only admins can post in this conversation")
	}

	msgType := input.Type
	if msgType == "" {
		msgType = model.MessageText
	}
	if !validMessageTypes[msgType] {
		return nil, apperr.Invalid("unsupported message type %q", msgType)
	}

	content := strings.TrimSpace(input.Content)
	if msgType == model.MessageText && content == "" {
		return nil, apperr.Invalid("content is required for text messages")
	}

	var replyTo *primitive.ObjectID
	if input.ReplyTo != "" {
		id, err := primitive.ObjectIDFromHex(input.ReplyTo)
		if err != nil {
			return nil, apperr.Invalid("malformed replyTo id %q", input.ReplyTo)
		}
		target, err := s.messages.FindByID(ctx, id)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return nil, apperr.Invalid("replyTo message %s does not exist", input.ReplyTo)
			}
			return nil, err
		}
		if target.ConversationID != conversation.ID {
			return nil, apperr.Invalid("replyTo message belongs to another conversation")
		}
		replyTo = &id
	}

	message := &model.Message{
		ConversationID: conversation.ID,
		Sender:         input.Sender,
		Type:           msgType,
		Content:        content,
		Attachments:    input.Attachments,
		ReplyTo:        replyTo,
		Status:         model.StatusSent,
	}

	inserted, err := s.messages.Insert(ctx, message)
	if err != nil {
		return nil, err
	}

	preview := model.PreviewContent(msgType, content)
	if err := s.conversations.UpdateAggregateOnSend(ctx, conversation.ID, inserted.ID, preview, inserted.CreatedAt); err != nil {
		return nil, err
	}

	observability.ObserveMessageSent(msgType)
	return inserted, nil
}

func (s *messageService) List(ctx context.Context, conversationID, callerID, cursor string, limit int) (*MessagePage, error) {
	conversation, err := s.fetchConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(callerID) {
		return nil, apperr.Forbidden("user %s is not a participant", callerID)
	}

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var before *primitive.ObjectID
	if cursor != "" {
		id, err := primitive.ObjectIDFromHex(cursor)
		if err != nil {
			return nil, apperr.Invalid("malformed cursor %q", cursor)
		}
		before = &id
	}

	messages, hasMore, err := s.messages.ListPage(ctx, conversation.ID, before, limit)
	if err != nil {
		return nil, err
	}

	// Soft-deleted messages stay in the history but their content is
	// redacted before leaving the service.
	for i := range messages {
		messages[i].Redact()
	}

	page := &MessagePage{Messages: messages, HasMore: hasMore}
	if hasMore && len(messages) > 0 {
		page.NextCursor = messages[len(messages)-1].ID.Hex()
	}
	return page, nil
}

// MarkRead is idempotent: repeating the call adds nothing to any read set.
func (s *messageService) MarkRead(ctx context.Context, conversationID, userID, upToMessageID string) error {
	conversation, err := s.fetchConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.IsParticipant(userID) {
		return apperr.Forbidden("user %s is not a participant", userID)
	}

	var upTo *primitive.ObjectID
	if upToMessageID != "" {
		id, err := primitive.ObjectIDFromHex(upToMessageID)
		if err != nil {
			return apperr.Invalid("malformed message id %q", upToMessageID)
		}
		target, err := s.messages.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if target.ConversationID != conversation.ID {
			return apperr.Invalid("message %s does not belong to conversation %s", upToMessageID, conversationID)
		}
		upTo = &id
	}

	modified, err := s.messages.MarkRead(ctx, conversation.ID, userID, upTo)
	if err != nil {
		return err
	}

	observability.ObserveReadReceipts(modified)
	return nil
}

// ToggleReaction adds the reaction if the user has not used that emoji on
// the message, removes it otherwise. Removal prunes an emptied bucket, so
// add-then-remove restores the exact prior mapping.
func (s *messageService) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*model.Message, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperr.Invalid("emoji is required")
	}

	message, conversation, err := s.fetchMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(userID) {
		return nil, apperr.Forbidden("user %s is not a participant", userID)
	}
	if message.Deleted.IsDeleted {
		return nil, apperr.Invalid("cannot react to a deleted message")
	}

	if message.HasReaction(userID, emoji) {
		updated, err := s.messages.RemoveReaction(ctx, message.ID, userID, emoji)
		if err != nil {
			return nil, err
		}
		observability.ObserveReaction("remove")
		return updated, nil
	}

	updated, err := s.messages.AddReaction(ctx, message.ID, userID, emoji)
	if err != nil {
		return nil, err
	}
	observability.ObserveReaction("add")
	return updated, nil
}

// Edit changes content for the sender only. A same-content edit is a no-op
// that leaves the edited flag untouched.
func (s *messageService) Edit(ctx context.Context, messageID, editorID, content string) (*model.Message, error) {
	message, _, err := s.fetchMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if message.Sender != editorID {
		return nil, apperr.Forbidden("only the sender can edit a message")
	}
	if message.Deleted.IsDeleted {
		return nil, apperr.Invalid("cannot edit a deleted message")
	}

	content = strings.TrimSpace(content)
	if message.Type == model.MessageText && content == "" {
		return nil, apperr.Invalid("content is required for text messages")
	}

	changed, err := s.messages.SetContent(ctx, message.ID, content, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !changed {
		return message, nil
	}

	return s.messages.FindByID(ctx, message.ID)
}

// SoftDelete flags the message deleted; the record survives and stays
// addressable as a replyTo target. Allowed for the sender and for group
// admins/owners.
func (s *messageService) SoftDelete(ctx context.Context, messageID, actorID string) error {
	message, conversation, err := s.fetchMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if message.Sender != actorID && !conversation.IsAdmin(actorID) {
		return apperr.Forbidden("only the sender or an admin can delete a message")
	}
	if message.Deleted.IsDeleted {
		return nil
	}

	return s.messages.SoftDelete(ctx, message.ID, actorID, time.Now().UTC())
}

func (s *messageService) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	conversation, err := s.fetchConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !conversation.IsParticipant(userID) {
		return 0, apperr.Forbidden("user %s is not a participant", userID)
	}
	return s.messages.CountUnread(ctx, conversation.ID, userID)
}

func (s *messageService) fetchConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.Invalid("malformed conversation id %q", conversationID)
	}
	return s.conversations.FindByID(ctx, id)
}

func (s *messageService) fetchMessage(ctx context.Context, messageID string) (*model.Message, *model.Conversation, error) {
	id, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, nil, apperr.Invalid("malformed message id %q", messageID)
	}
	message, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	conversation, err := s.conversations.FindByID(ctx, message.ConversationID)
	if err != nil {
		return nil, nil, err
	}
	return message, conversation, nil
}
