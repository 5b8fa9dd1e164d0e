package models

import "time"

// MessageType enumerates the supported message content kinds.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeFile     MessageType = "file"
	TypeVoice    MessageType = "voice"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "contact"
	TypePoll     MessageType = "poll"
	TypeEvent    MessageType = "event"
	TypeGIF      MessageType = "gif"
	TypeSticker  MessageType = "sticker"
	TypeEmoji    MessageType = "emoji"
	TypeCode     MessageType = "code"
	TypeMarkdown MessageType = "markdown"
)

// Priority marks how a message should be surfaced.
type Priority string

const (
	PriorityNormal    Priority = "normal"
	PriorityImportant Priority = "important"
	PriorityUrgent    Priority = "urgent"
)

// Reaction is a single emoji reaction by a user.
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"user_id"`
}

// Message is a chat message. The ID is globally unique and is the sole
// deduplication key across the live transport, REST fetches and push payloads.
type Message struct {
	ID                 string          `json:"id"`
	Conversation       ConversationRef `json:"conversation"`
	SenderID           string          `json:"sender_id"`
	Content            string          `json:"content"`
	Type               MessageType     `json:"type"`
	CreatedAt          time.Time       `json:"created_at"`
	EditedAt           *time.Time      `json:"edited_at,omitempty"`
	IsDeleted          bool            `json:"is_deleted"`
	DeletedForUserIDs  []string        `json:"deleted_for_user_ids,omitempty"`
	DeletedForEveryone bool            `json:"deleted_for_everyone"`
	Reactions          []Reaction      `json:"reactions,omitempty"`
	ReadBy             []string        `json:"read_by,omitempty"`
	Priority           Priority        `json:"priority"`
	Tags               []string        `json:"tags,omitempty"`
}

// DeletedFor reports whether the message is hidden for the given user.
func (m *Message) DeletedFor(userID string) bool {
	if m.DeletedForEveryone {
		return true
	}
	for _, id := range m.DeletedForUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ReadByUser reports whether the given user has read the message.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// OrderedBefore implements the conversation ordering key (createdAt, id).
func (m *Message) OrderedBefore(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
