package model

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation types
const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

// Participant roles
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
	RoleOwner  = "owner"
)

// DirectConversationName is the placeholder name stored on direct
// conversations; clients render the other party's display name instead.
const DirectConversationName = "Direct Message"

// Conversation represents a direct or group conversation in MongoDB.
// Type is immutable after creation.
type Conversation struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Type         string             `json:"type" bson:"type"`
	Participants []Participant      `json:"participants" bson:"participants"`
	Name         string             `json:"name" bson:"name"`
	Description  string             `json:"description,omitempty" bson:"description,omitempty"`
	Photo        ConversationPhoto  `json:"photo" bson:"photo"`
	Settings     Settings           `json:"settings" bson:"settings"`

	// Cached aggregate fields, maintained atomically on every send.
	LastMessage        *primitive.ObjectID `json:"lastMessage,omitempty" bson:"last_message,omitempty"`
	LastMessageContent string              `json:"lastMessageContent,omitempty" bson:"last_message_content,omitempty"`
	LastMessageAt      *time.Time          `json:"lastMessageAt,omitempty" bson:"last_message_at,omitempty"`
	MessageCount       int64               `json:"messageCount" bson:"message_count"`

	// Set only for direct conversations; globally unique among them.
	DirectMessageKey string `json:"-" bson:"direct_message_key,omitempty"`

	ArchivedBy     []string             `json:"archivedBy,omitempty" bson:"archived_by,omitempty"`
	PinnedMessages []primitive.ObjectID `json:"pinnedMessages,omitempty" bson:"pinned_messages,omitempty"`
	Metadata       map[string]string    `json:"metadata,omitempty" bson:"metadata,omitempty"`

	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Participant is a user's membership record within a conversation. A record
// with IsActive=false is historical only: it keeps JoinedAt/LeftAt but is
// excluded from participant counts and membership queries.
type Participant struct {
	User          string               `json:"user" bson:"user"`
	Role          string               `json:"role" bson:"role"`
	JoinedAt      time.Time            `json:"joinedAt" bson:"joined_at"`
	LeftAt        *time.Time           `json:"leftAt,omitempty" bson:"left_at,omitempty"`
	IsActive      bool                 `json:"isActive" bson:"is_active"`
	Nickname      string               `json:"nickname,omitempty" bson:"nickname,omitempty"`
	Notifications NotificationSettings `json:"notifications" bson:"notifications"`
}

// NotificationSettings are per-participant, per-conversation.
type NotificationSettings struct {
	Muted       bool       `json:"muted" bson:"muted"`
	MuteUntil   *time.Time `json:"muteUntil,omitempty" bson:"mute_until,omitempty"`
	CustomSound string     `json:"customSound,omitempty" bson:"custom_sound,omitempty"`
}

// Settings holds conversation-level options.
type Settings struct {
	IsPublic          bool `json:"isPublic" bson:"is_public"`
	AllowInvites      bool `json:"allowInvites" bson:"allow_invites"`
	AdminOnlyMessages bool `json:"adminOnlyMessages" bson:"admin_only_messages"`
	MaxParticipants   int  `json:"maxParticipants" bson:"max_participants"`
}

// ConversationPhoto holds the group avatar references.
type ConversationPhoto struct {
	URL       string `json:"url,omitempty" bson:"url,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty" bson:"thumbnail,omitempty"`
}

// DefaultSettings returns the settings applied when a creator supplies none.
func DefaultSettings() Settings {
	return Settings{
		IsPublic:          false,
		AllowInvites:      true,
		AdminOnlyMessages: false,
		MaxParticipants:   1000,
	}
}

// DirectKey derives the canonical key for a direct conversation: the two
// user ids sorted lexically and joined with "_". Exactly one direct
// conversation exists per key, enforced by a unique index.
func DirectKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// FindParticipant returns the membership record for user, active or not.
func (c *Conversation) FindParticipant(user string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].User == user {
			return &c.Participants[i]
		}
	}
	return nil
}

// ActiveParticipants returns the participants currently in the conversation.
func (c *Conversation) ActiveParticipants() []Participant {
	var active []Participant
	for _, p := range c.Participants {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active
}

// IsParticipant reports whether user is an active participant.
func (c *Conversation) IsParticipant(user string) bool {
	p := c.FindParticipant(user)
	return p != nil && p.IsActive
}

// RoleOf returns the role of an active participant, or "" if the user is
// not currently in the conversation.
func (c *Conversation) RoleOf(user string) string {
	p := c.FindParticipant(user)
	if p == nil || !p.IsActive {
		return ""
	}
	return p.Role
}

// IsAdmin reports whether user is an active admin or the owner.
func (c *Conversation) IsAdmin(user string) bool {
	role := c.RoleOf(user)
	return role == RoleAdmin || role == RoleOwner
}

// IsArchivedBy reports whether user has hidden the conversation.
func (c *Conversation) IsArchivedBy(user string) bool {
	for _, u := range c.ArchivedBy {
		if u == user {
			return true
		}
	}
	return false
}
