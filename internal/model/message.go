package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message types
const (
	MessageText   = "text"
	MessageImage  = "image"
	MessageFile   = "file"
	MessageAudio  = "audio"
	MessageVideo  = "video"
	MessageSystem = "system"
)

// Delivery states. The machine is forward-only: sent → delivered → read.
// StatusSending exists for clients composing optimistically and is never
// persisted; StatusFailed is set by the transport layer, not by this store.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// System message subtypes
const (
	SystemUserJoined   = "user_joined"
	SystemUserLeft     = "user_left"
	SystemGroupCreated = "group_created"
	SystemNameChanged  = "name_changed"
	SystemPhotoChanged = "photo_changed"
)

// DeletedPlaceholder replaces the content of soft-deleted messages on read
// paths.
const DeletedPlaceholder = "This message was deleted"

// Message is a single message owned by exactly one conversation.
type Message struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `json:"conversationId" bson:"conversation_id"`
	Sender         string             `json:"sender" bson:"sender"`
	Type           string             `json:"type" bson:"type"`
	Content        string             `json:"content" bson:"content"`
	Attachments    []Attachment       `json:"attachments,omitempty" bson:"attachments,omitempty"`

	// IsReadBy grows monotonically and never contains the sender through
	// the read-marking operation.
	IsReadBy  []string            `json:"isReadBy" bson:"is_read_by"`
	Reactions []Reaction          `json:"reactions" bson:"reactions"`
	ReplyTo   *primitive.ObjectID `json:"replyTo,omitempty" bson:"reply_to,omitempty"`

	Edited  EditState   `json:"edited" bson:"edited"`
	Deleted DeleteState `json:"deleted" bson:"deleted"`

	SystemType string      `json:"systemType,omitempty" bson:"system_type,omitempty"`
	SystemData *SystemData `json:"systemData,omitempty" bson:"system_data,omitempty"`

	Status    string    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

// Reaction is a bucket of users who applied one emoji. A bucket is removed
// from the message once its user set empties.
type Reaction struct {
	Emoji     string    `json:"emoji" bson:"emoji"`
	Users     []string  `json:"users" bson:"users"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}

// Attachment references externally stored media; URLs are opaque here.
type Attachment struct {
	URL          string  `json:"url" bson:"url"`
	Name         string  `json:"name" bson:"name"`
	Size         int64   `json:"size,omitempty" bson:"size,omitempty"`
	MimeType     string  `json:"mimeType,omitempty" bson:"mime_type,omitempty"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty" bson:"thumbnail_url,omitempty"`
	Duration     float64 `json:"duration,omitempty" bson:"duration,omitempty"`
}

// EditState records whether and when content was changed after creation.
type EditState struct {
	IsEdited bool       `json:"isEdited" bson:"is_edited"`
	EditedAt *time.Time `json:"editedAt,omitempty" bson:"edited_at,omitempty"`
}

// DeleteState is the soft-delete marker. The record is never removed; a
// deleted message stays addressable as a replyTo target.
type DeleteState struct {
	IsDeleted bool       `json:"isDeleted" bson:"is_deleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" bson:"deleted_at,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty" bson:"deleted_by,omitempty"`
}

// SystemData describes the membership or metadata event behind a system
// message.
type SystemData struct {
	Actor    string `json:"actor,omitempty" bson:"actor,omitempty"`
	Target   string `json:"target,omitempty" bson:"target,omitempty"`
	OldValue string `json:"oldValue,omitempty" bson:"old_value,omitempty"`
	NewValue string `json:"newValue,omitempty" bson:"new_value,omitempty"`
}

// ReadBy reports whether user is in the read set.
func (m *Message) ReadBy(user string) bool {
	for _, u := range m.IsReadBy {
		if u == user {
			return true
		}
	}
	return false
}

// ReactionBucket returns the bucket for emoji, or nil.
func (m *Message) ReactionBucket(emoji string) *Reaction {
	for i := range m.Reactions {
		if m.Reactions[i].Emoji == emoji {
			return &m.Reactions[i]
		}
	}
	return nil
}

// HasReaction reports whether user already reacted with emoji.
func (m *Message) HasReaction(user, emoji string) bool {
	b := m.ReactionBucket(emoji)
	if b == nil {
		return false
	}
	for _, u := range b.Users {
		if u == user {
			return true
		}
	}
	return false
}

// Redact strips the content of a soft-deleted message for display. The
// metadata (sender, timestamps, deletion record) survives; attachments and
// reactions do not.
func (m *Message) Redact() {
	if !m.Deleted.IsDeleted {
		return
	}
	m.Content = DeletedPlaceholder
	m.Attachments = nil
	m.Reactions = nil
}

// PreviewContent returns the text cached on the conversation as
// lastMessageContent: the content itself for text and system messages, a
// type placeholder otherwise.
func PreviewContent(msgType, content string) string {
	switch msgType {
	case MessageText, MessageSystem:
		return content
	case MessageImage:
		return "📷 Photo"
	case MessageFile:
		return "📎 File"
	case MessageAudio:
		return "🎤 Voice message"
	case MessageVideo:
		return "🎥 Video"
	default:
		return content
	}
}
