package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"messaging-service/internal/apperr"
	"messaging-service/internal/mocks"
	"messaging-service/internal/model"
	"messaging-service/internal/service"
)

func newConversationService(t *testing.T) (service.ConversationService, *mocks.ConversationRepository, *mocks.MessageRepository) {
	t.Helper()
	conversations := new(mocks.ConversationRepository)
	messages := new(mocks.MessageRepository)
	svc := service.NewConversationService(conversations, messages, zap.NewNop())
	return svc, conversations, messages
}

func groupWith(participants ...model.Participant) *model.Conversation {
	return &model.Conversation{
		ID:           primitive.NewObjectID(),
		Type:         model.ConversationGroup,
		Name:         "Team",
		Participants: participants,
		Settings:     model.DefaultSettings(),
	}
}

func active(user, role string) model.Participant {
	return model.Participant{User: user, Role: role, JoinedAt: time.Now().UTC(), IsActive: true}
}

func inactive(user string) model.Participant {
	left := time.Now().UTC().Add(-time.Hour)
	return model.Participant{User: user, Role: model.RoleMember, JoinedAt: left.Add(-time.Hour), LeftAt: &left, IsActive: false}
}

func TestResolveOrCreateDirectValidation(t *testing.T) {
	svc, _, _ := newConversationService(t)

	_, err := svc.ResolveOrCreateDirect(context.Background(), "", "bob")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	_, err = svc.ResolveOrCreateDirect(context.Background(), "alice", "alice")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	_, err = svc.ResolveOrCreateDirect(context.Background(), "  alice  ", "alice")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid), "ids are compared after trimming")
}

func TestResolveOrCreateDirectReturnsExisting(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	existing := &model.Conversation{
		ID:               primitive.NewObjectID(),
		Type:             model.ConversationDirect,
		DirectMessageKey: model.DirectKey("alice", "bob"),
		ArchivedBy:       []string{"alice"},
	}
	conversations.On("FindByDirectKey", mock.Anything, "alice_bob").Return(existing, nil)
	conversations.On("UnarchiveForUsers", mock.Anything, existing.ID, []string{"bob", "alice"}).Return(nil)

	got, err := svc.ResolveOrCreateDirect(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	conversations.AssertExpectations(t)
	conversations.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestResolveOrCreateDirectCreates(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	conversations.On("FindByDirectKey", mock.Anything, "alice_bob").Return(nil, apperr.NotFound("no conversation"))
	conversations.On("Create", mock.Anything, mock.MatchedBy(func(c *model.Conversation) bool {
		return c.Type == model.ConversationDirect &&
			c.DirectMessageKey == "alice_bob" &&
			len(c.Participants) == 2 &&
			c.Participants[0].Role == model.RoleMember &&
			c.Participants[1].Role == model.RoleMember
	})).Return(&model.Conversation{ID: primitive.NewObjectID(), Type: model.ConversationDirect}, nil)

	got, err := svc.ResolveOrCreateDirect(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.False(t, got.ID.IsZero())
	conversations.AssertExpectations(t)
}

func TestResolveOrCreateDirectLosesRace(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	winner := &model.Conversation{ID: primitive.NewObjectID(), Type: model.ConversationDirect}

	// First read misses, create loses the unique-index race, second read
	// returns the winner's document.
	conversations.On("FindByDirectKey", mock.Anything, "alice_bob").Return(nil, apperr.NotFound("no conversation")).Once()
	conversations.On("Create", mock.Anything, mock.Anything).Return(nil, apperr.Conflict("duplicate direct key")).Once()
	conversations.On("FindByDirectKey", mock.Anything, "alice_bob").Return(winner, nil).Once()
	conversations.On("UnarchiveForUsers", mock.Anything, winner.ID, mock.Anything).Return(nil)

	got, err := svc.ResolveOrCreateDirect(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	conversations.AssertExpectations(t)
}

func TestCreateGroupValidation(t *testing.T) {
	svc, _, _ := newConversationService(t)

	_, err := svc.CreateGroup(context.Background(), "alice", nil, "   ", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	_, err = svc.CreateGroup(context.Background(), "", nil, "Team", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	small := model.DefaultSettings()
	small.MaxParticipants = 2
	_, err = svc.CreateGroup(context.Background(), "alice", []string{"bob", "carol"}, "Team", &small)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid), "roster over the limit is rejected before any write")
}

func TestCreateGroupDeduplicatesRoster(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	created := groupWith(active("alice", model.RoleOwner), active("bob", model.RoleMember))
	conversations.On("Create", mock.Anything, mock.MatchedBy(func(c *model.Conversation) bool {
		if len(c.Participants) != 2 {
			return false
		}
		return c.Participants[0].User == "alice" &&
			c.Participants[0].Role == model.RoleOwner &&
			c.Participants[1].User == "bob"
	})).Return(created, nil)

	systemMessage := &model.Message{ID: primitive.NewObjectID(), CreatedAt: time.Now().UTC()}
	messages.On("Insert", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.Type == model.MessageSystem && m.SystemType == model.SystemGroupCreated
	})).Return(systemMessage, nil)
	conversations.On("UpdateAggregateOnSend", mock.Anything, created.ID, systemMessage.ID, mock.Anything, mock.Anything).Return(nil)

	got, err := svc.CreateGroup(context.Background(), "alice", []string{"bob", "alice", "bob", " "}, "Team", nil)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	conversations.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestCreateGroupSurvivesSystemMessageFailure(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	created := groupWith(active("alice", model.RoleOwner))
	conversations.On("Create", mock.Anything, mock.Anything).Return(created, nil)
	messages.On("Insert", mock.Anything, mock.Anything).Return(nil, apperr.Internal(nil, "insert failed"))

	got, err := svc.CreateGroup(context.Background(), "alice", nil, "Team", nil)
	require.NoError(t, err, "a missing audit line must not fail the creation")
	assert.Equal(t, created.ID, got.ID)
}

func TestGetRequiresMembership(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	conversation := groupWith(active("alice", model.RoleOwner))
	conversations.On("FindByID", mock.Anything, conversation.ID).Return(conversation, nil)

	_, err := svc.Get(context.Background(), conversation.ID.Hex(), "stranger")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = svc.Get(context.Background(), "not-hex", "alice")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	got, err := svc.Get(context.Background(), conversation.ID.Hex(), "alice")
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, got.ID)
}

func TestAddParticipantRules(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	direct := &model.Conversation{
		ID:   primitive.NewObjectID(),
		Type: model.ConversationDirect,
		Participants: []model.Participant{
			active("alice", model.RoleMember),
			active("bob", model.RoleMember),
		},
		Settings: model.DefaultSettings(),
	}
	conversations.On("FindByID", mock.Anything, direct.ID).Return(direct, nil)

	err := svc.AddParticipant(context.Background(), direct.ID.Hex(), "alice", "carol", "")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid), "direct conversations have a fixed roster")

	noInvites := groupWith(active("owner", model.RoleOwner), active("member", model.RoleMember))
	noInvites.Settings.AllowInvites = false
	conversations.On("FindByID", mock.Anything, noInvites.ID).Return(noInvites, nil)

	err = svc.AddParticipant(context.Background(), noInvites.ID.Hex(), "member", "carol", "")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	err = svc.AddParticipant(context.Background(), noInvites.ID.Hex(), "stranger", "carol", "")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	err = svc.AddParticipant(context.Background(), noInvites.ID.Hex(), "owner", "carol", "owner")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid), "owner is not an assignable role")
}

func TestAddParticipantAdminRoleRequiresAdmin(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	// Open invites let members add people, but not hand out admin.
	group := groupWith(active("owner", model.RoleOwner), active("bob", model.RoleMember), inactive("carol"))
	group.Settings.AllowInvites = true
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	err := svc.AddParticipant(context.Background(), group.ID.Hex(), "bob", "dave", model.RoleAdmin)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	conversations.AssertNotCalled(t, "AppendParticipant", mock.Anything, mock.Anything, mock.Anything)

	// Re-inviting a former member with an elevated role is the same grant.
	err = svc.AddParticipant(context.Background(), group.ID.Hex(), "bob", "carol", model.RoleAdmin)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
	conversations.AssertNotCalled(t, "ReactivateParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddParticipantIdempotentWhenActive(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner), active("bob", model.RoleMember))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	err := svc.AddParticipant(context.Background(), group.ID.Hex(), "owner", "bob", "")
	require.NoError(t, err)
	conversations.AssertNotCalled(t, "AppendParticipant", mock.Anything, mock.Anything, mock.Anything)
	conversations.AssertNotCalled(t, "ReactivateParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddParticipantReactivatesFormerMember(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner), inactive("bob"))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)
	conversations.On("ReactivateParticipant", mock.Anything, group.ID, "bob", model.RoleMember).Return(true, nil)

	systemMessage := &model.Message{ID: primitive.NewObjectID(), CreatedAt: time.Now().UTC()}
	messages.On("Insert", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.SystemType == model.SystemUserJoined && m.SystemData.Target == "bob"
	})).Return(systemMessage, nil)
	conversations.On("UpdateAggregateOnSend", mock.Anything, group.ID, systemMessage.ID, mock.Anything, mock.Anything).Return(nil)

	err := svc.AddParticipant(context.Background(), group.ID.Hex(), "owner", "bob", "")
	require.NoError(t, err)
	conversations.AssertExpectations(t)
	conversations.AssertNotCalled(t, "AppendParticipant", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddParticipantAppendsNewMember(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)
	conversations.On("AppendParticipant", mock.Anything, group.ID, mock.MatchedBy(func(p model.Participant) bool {
		return p.User == "carol" && p.Role == model.RoleAdmin && p.IsActive
	})).Return(true, nil)

	systemMessage := &model.Message{ID: primitive.NewObjectID(), CreatedAt: time.Now().UTC()}
	messages.On("Insert", mock.Anything, mock.Anything).Return(systemMessage, nil)
	conversations.On("UpdateAggregateOnSend", mock.Anything, group.ID, systemMessage.ID, mock.Anything, mock.Anything).Return(nil)

	err := svc.AddParticipant(context.Background(), group.ID.Hex(), "owner", "carol", model.RoleAdmin)
	require.NoError(t, err)
	conversations.AssertExpectations(t)
}

func TestRemoveParticipant(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner), active("bob", model.RoleMember), active("carol", model.RoleMember))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	// Member removing someone else is forbidden.
	err := svc.RemoveParticipant(context.Background(), group.ID.Hex(), "bob", "carol")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	// Leaving on your own is always allowed.
	conversations.On("DeactivateParticipant", mock.Anything, group.ID, "bob", mock.Anything).Return(true, nil)
	systemMessage := &model.Message{ID: primitive.NewObjectID(), CreatedAt: time.Now().UTC()}
	messages.On("Insert", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.SystemType == model.SystemUserLeft && m.SystemData.Target == "bob"
	})).Return(systemMessage, nil)
	conversations.On("UpdateAggregateOnSend", mock.Anything, group.ID, systemMessage.ID, mock.Anything, mock.Anything).Return(nil)

	err = svc.RemoveParticipant(context.Background(), group.ID.Hex(), "bob", "bob")
	require.NoError(t, err)
	conversations.AssertExpectations(t)
}

func TestRemoveParticipantAlreadyLeft(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner), inactive("bob"))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)
	conversations.On("DeactivateParticipant", mock.Anything, group.ID, "bob", mock.Anything).Return(false, nil)

	err := svc.RemoveParticipant(context.Background(), group.ID.Hex(), "owner", "bob")
	require.NoError(t, err, "removing a user who already left is a no-op")
	messages.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestRenameGroup(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner), active("bob", model.RoleMember))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	err := svc.RenameGroup(context.Background(), group.ID.Hex(), "bob", "New Name")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	err = svc.RenameGroup(context.Background(), group.ID.Hex(), "owner", "  ")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid))

	// Same name changes nothing.
	err = svc.RenameGroup(context.Background(), group.ID.Hex(), "owner", "Team")
	require.NoError(t, err)
	conversations.AssertNotCalled(t, "Rename", mock.Anything, mock.Anything, mock.Anything)

	conversations.On("Rename", mock.Anything, group.ID, "New Name").Return(nil)
	systemMessage := &model.Message{ID: primitive.NewObjectID(), CreatedAt: time.Now().UTC()}
	messages.On("Insert", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.SystemType == model.SystemNameChanged &&
			m.SystemData.OldValue == "Team" &&
			m.SystemData.NewValue == "New Name"
	})).Return(systemMessage, nil)
	conversations.On("UpdateAggregateOnSend", mock.Anything, group.ID, systemMessage.ID, mock.Anything, mock.Anything).Return(nil)

	err = svc.RenameGroup(context.Background(), group.ID.Hex(), "owner", "New Name")
	require.NoError(t, err)
	conversations.AssertExpectations(t)
}

func TestSetArchived(t *testing.T) {
	svc, conversations, _ := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	err := svc.SetArchived(context.Background(), group.ID.Hex(), "stranger", true)
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))

	conversations.On("SetArchived", mock.Anything, group.ID, "owner", true).Return(nil)
	err = svc.SetArchived(context.Background(), group.ID.Hex(), "owner", true)
	require.NoError(t, err)
	conversations.AssertExpectations(t)
}

func TestPinMessageChecksOwnership(t *testing.T) {
	svc, conversations, messages := newConversationService(t)

	group := groupWith(active("owner", model.RoleOwner))
	conversations.On("FindByID", mock.Anything, group.ID).Return(group, nil)

	foreign := &model.Message{ID: primitive.NewObjectID(), ConversationID: primitive.NewObjectID()}
	messages.On("FindByID", mock.Anything, foreign.ID).Return(foreign, nil)

	err := svc.PinMessage(context.Background(), group.ID.Hex(), "owner", foreign.ID.Hex())
	assert.True(t, apperr.IsKind(err, apperr.KindInvalid), "cannot pin a message from another conversation")

	local := &model.Message{ID: primitive.NewObjectID(), ConversationID: group.ID}
	messages.On("FindByID", mock.Anything, local.ID).Return(local, nil)
	conversations.On("PinMessage", mock.Anything, group.ID, local.ID).Return(nil)

	err = svc.PinMessage(context.Background(), group.ID.Hex(), "owner", local.ID.Hex())
	require.NoError(t, err)
	conversations.AssertExpectations(t)
}
