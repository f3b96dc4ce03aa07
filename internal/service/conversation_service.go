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

// directCreateAttempts bounds the find → create → lost-race → find loop in
// ResolveOrCreateDirect. More than one retry means the store is deleting
// and recreating conversations underneath us, which does not happen in
// normal operation.
const directCreateAttempts = 3

// ConversationService is the conversation directory: it owns
// resolve-or-create semantics for direct conversations, group lifecycle,
// and the participant roster.
type ConversationService interface {
	ResolveOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, error)
	CreateGroup(ctx context.Context, creator string, participants []string, name string, settings *model.Settings) (*model.Conversation, error)
	Get(ctx context.Context, conversationID, callerID string) (*model.Conversation, error)
	List(ctx context.Context, userID string) ([]model.Conversation, error)

	AddParticipant(ctx context.Context, conversationID, actorID, userID, role string) error
	RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error
	RenameGroup(ctx context.Context, conversationID, actorID, name string) error

	SetArchived(ctx context.Context, conversationID, userID string, archived bool) error
	PinMessage(ctx context.Context, conversationID, actorID, messageID string) error
	UnpinMessage(ctx context.Context, conversationID, actorID, messageID string) error
}

type conversationService struct {
	conversations repo.ConversationRepository
	messages      repo.MessageRepository
	logger        *zap.Logger
}

func NewConversationService(conversations repo.ConversationRepository, messages repo.MessageRepository, logger *zap.Logger) ConversationService {
	return &conversationService{
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// ResolveOrCreateDirect returns the one direct conversation for the pair,
// creating it if needed. A concurrent creator losing the uniqueness race on
// the canonical key gets Conflict from the repository and retries as a
// read, so callers never observe a duplicate and never see the Conflict.
func (s *conversationService) ResolveOrCreateDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, apperr.Invalid("both user ids are required")
	}
	if userA == userB {
		return nil, apperr.Invalid("cannot create a direct conversation with yourself")
	}

	key := model.DirectKey(userA, userB)

	var lastErr error
	for attempt := 0; attempt < directCreateAttempts; attempt++ {
		existing, err := s.conversations.FindByDirectKey(ctx, key)
		if err == nil {
			// Re-opening a hidden DM makes it visible to both parties again.
			if err := s.conversations.UnarchiveForUsers(ctx, existing.ID, []string{userA, userB}); err != nil {
				return nil, err
			}
			return existing, nil
		}
		if !apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}

		now := time.Now().UTC()
		conversation := &model.Conversation{
			Type: model.ConversationDirect,
			Name: model.DirectConversationName,
			Participants: []model.Participant{
				{User: userA, Role: model.RoleMember, JoinedAt: now, IsActive: true},
				{User: userB, Role: model.RoleMember, JoinedAt: now, IsActive: true},
			},
			Settings:         model.DefaultSettings(),
			DirectMessageKey: key,
		}

		created, err := s.conversations.Create(ctx, conversation)
		if err == nil {
			return created, nil
		}
		if apperr.IsKind(err, apperr.KindConflict) {
			// Lost the race; the winner's conversation is there to read.
			observability.ObserveDirectConflictRetry()
			s.logger.Debug("direct conversation race lost, re-reading", zap.String("key", key))
			lastErr = err
			continue
		}
		return nil, err
	}

	return nil, apperr.Internal(lastErr, "resolve direct conversation did not settle")
}

func (s *conversationService) CreateGroup(ctx context.Context, creator string, participants []string, name string, settings *model.Settings) (*model.Conversation, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, apperr.Invalid("creator is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Invalid("group name is required")
	}

	effective := model.DefaultSettings()
	if settings != nil {
		effective = *settings
		if effective.MaxParticipants <= 0 {
			effective.MaxParticipants = model.DefaultSettings().MaxParticipants
		}
	}

	now := time.Now().UTC()
	roster := []model.Participant{
		{User: creator, Role: model.RoleOwner, JoinedAt: now, IsActive: true},
	}
	for _, userID := range participants {
		userID = strings.TrimSpace(userID)
		if userID == "" || userID == creator {
			continue
		}
		duplicate := false
		for _, p := range roster {
			if p.User == userID {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		roster = append(roster, model.Participant{User: userID, Role: model.RoleMember, JoinedAt: now, IsActive: true})
	}

	if len(roster) > effective.MaxParticipants {
		return nil, apperr.Invalid("group exceeds the participant limit of %d", effective.MaxParticipants)
	}

	conversation := &model.Conversation{
		Type:         model.ConversationGroup,
		Name:         name,
		Participants: roster,
		Settings:     effective,
	}

	created, err := s.conversations.Create(ctx, conversation)
	if err != nil {
		return nil, err
	}

	s.recordSystemEvent(ctx, created, model.SystemGroupCreated, "Group created", &model.SystemData{
		Actor:    creator,
		NewValue: name,
	})
	return created, nil
}

func (s *conversationService) Get(ctx context.Context, conversationID, callerID string) (*model.Conversation, error) {
	conversation, err := s.fetch(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsParticipant(callerID) {
		return nil, apperr.Forbidden("user %s is not a participant", callerID)
	}
	return conversation, nil
}

func (s *conversationService) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	return s.conversations.ListForUser(ctx, userID)
}

// AddParticipant is group-only. A user who previously left is reactivated
// instead of duplicated; adding an already-active member is a no-op. Only
// admins may grant the admin role, regardless of the invite setting.
func (s *conversationService) AddParticipant(ctx context.Context, conversationID, actorID, userID, role string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Invalid("user id is required")
	}
	if role == "" {
		role = model.RoleMember
	}
	if role != model.RoleMember && role != model.RoleAdmin {
		return apperr.Invalid("role must be %q or %q", model.RoleMember, model.RoleAdmin)
	}

	conversation, err := s.fetch(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.Type != model.ConversationGroup {
		return apperr.Invalid("participants can only be added to group conversations")
	}
	if !conversation.IsParticipant(actorID) {
		return apperr.Forbidden("user %s is not a participant", actorID)
	}
	if !conversation.Settings.AllowInvites && !conversation.IsAdmin(actorID) {
		return apperr.Forbidden("only admins can add participants to this group")
	}
	if role == model.RoleAdmin && !conversation.IsAdmin(actorID) {
		return apperr.Forbidden("only admins can grant the admin role")
	}

	existing := conversation.FindParticipant(userID)
	if existing != nil && existing.IsActive {
		return nil // already in, idempotent
	}

	if len(conversation.ActiveParticipants()) >= conversation.Settings.MaxParticipants {
		return apperr.Invalid("group is at its participant limit of %d", conversation.Settings.MaxParticipants)
	}

	var joined bool
	if existing != nil {
		joined, err = s.conversations.ReactivateParticipant(ctx, conversation.ID, userID, role)
	} else {
		now := time.Now().UTC()
		participant := model.Participant{User: userID, Role: role, JoinedAt: now, IsActive: true}
		joined, err = s.conversations.AppendParticipant(ctx, conversation.ID, participant)
	}
	if err != nil {
		return err
	}

	if joined {
		s.recordSystemEvent(ctx, conversation, model.SystemUserJoined, "User joined the group", &model.SystemData{
			Actor:  actorID,
			Target: userID,
		})
	}
	return nil
}

// RemoveParticipant marks the membership inactive. Removing a user who
// already left is a no-op and does not touch their leftAt.
func (s *conversationService) RemoveParticipant(ctx context.Context, conversationID, actorID, userID string) error {
	conversation, err := s.fetch(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.Type != model.ConversationGroup {
		return apperr.Invalid("participants can only be removed from group conversations")
	}
	if actorID != userID && !conversation.IsAdmin(actorID) {
		return apperr.Forbidden("only admins can remove other participants")
	}

	left, err := s.conversations.DeactivateParticipant(ctx, conversation.ID, userID, time.Now().UTC())
	if err != nil {
		return err
	}

	if left {
		s.recordSystemEvent(ctx, conversation, model.SystemUserLeft, "User left the group", &model.SystemData{
			Actor:  actorID,
			Target: userID,
		})
	}
	return nil
}

func (s *conversationService) RenameGroup(ctx context.Context, conversationID, actorID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.Invalid("group name is required")
	}

	conversation, err := s.fetch(ctx, conversationID)
	if err != nil {
		return err
	}
	if conversation.Type != model.ConversationGroup {
		return apperr.Invalid("only group conversations can be renamed")
	}
	if !conversation.IsAdmin(actorID) {
		return apperr.Forbidden("only admins can rename the group")
	}
	if conversation.Name == name {
		return nil
	}

	if err := s.conversations.Rename(ctx, conversation.ID, name); err != nil {
		return err
	}

	s.recordSystemEvent(ctx, conversation, model.SystemNameChanged, "Group was renamed", &model.SystemData{
		Actor:    actorID,
		OldValue: conversation.Name,
		NewValue: name,
	})
	return nil
}

func (s *conversationService) SetArchived(ctx context.Context, conversationID, userID string, archived bool) error {
	conversation, err := s.fetch(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conversation.IsParticipant(userID) {
		return apperr.Forbidden("user %s is not a participant", userID)
	}
	return s.conversations.SetArchived(ctx, conversation.ID, userID, archived)
}

func (s *conversationService) PinMessage(ctx context.Context, conversationID, actorID, messageID string) error {
	conversation, message, err := s.fetchWithMessage(ctx, conversationID, actorID, messageID)
	if err != nil {
		return err
	}
	return s.conversations.PinMessage(ctx, conversation.ID, message.ID)
}

func (s *conversationService) UnpinMessage(ctx context.Context, conversationID, actorID, messageID string) error {
	conversation, message, err := s.fetchWithMessage(ctx, conversationID, actorID, messageID)
	if err != nil {
		return err
	}
	return s.conversations.UnpinMessage(ctx, conversation.ID, message.ID)
}

func (s *conversationService) fetch(ctx context.Context, conversationID string) (*model.Conversation, error) {
	id, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.Invalid("malformed conversation id %q", conversationID)
	}
	return s.conversations.FindByID(ctx, id)
}

func (s *conversationService) fetchWithMessage(ctx context.Context, conversationID, actorID, messageID string) (*model.Conversation, *model.Message, error) {
	conversation, err := s.fetch(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conversation.IsParticipant(actorID) {
		return nil, nil, apperr.Forbidden("user %s is not a participant", actorID)
	}

	msgID, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return nil, nil, apperr.Invalid("malformed message id %q", messageID)
	}
	message, err := s.messages.FindByID(ctx, msgID)
	if err != nil {
		return nil, nil, err
	}
	if message.ConversationID != conversation.ID {
		return nil, nil, apperr.Invalid("message %s does not belong to conversation %s", messageID, conversationID)
	}
	return conversation, message, nil
}

// recordSystemEvent writes a system message through the same insert +
// aggregate path as user sends. Failures are logged and swallowed: the
// membership change already happened and must not be rolled back by a
// missing audit line.
func (s *conversationService) recordSystemEvent(ctx context.Context, conversation *model.Conversation, systemType, content string, data *model.SystemData) {
	message := &model.Message{
		ConversationID: conversation.ID,
		Sender:         data.Actor,
		Type:           model.MessageSystem,
		Content:        content,
		SystemType:     systemType,
		SystemData:     data,
		Status:         model.StatusSent,
	}

	inserted, err := s.messages.Insert(ctx, message)
	if err != nil {
		s.logger.Warn("failed to record system message",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.String("system_type", systemType),
			zap.Error(err),
		)
		return
	}

	if err := s.conversations.UpdateAggregateOnSend(ctx, conversation.ID, inserted.ID, model.PreviewContent(model.MessageSystem, content), inserted.CreatedAt); err != nil {
		s.logger.Warn("failed to update aggregate for system message",
			zap.String("conversation_id", conversation.ID.Hex()),
			zap.Error(err),
		)
		return
	}

	observability.ObserveMessageSent(model.MessageSystem)
}
