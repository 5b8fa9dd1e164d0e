package models

import "time"

// ConversationRef identifies a conversation: exactly one of ChatID or GroupID
// is set. The same reference is used on the transport, the REST API and the
// push payloads.
type ConversationRef struct {
	ChatID  string `json:"chatId,omitempty" db:"chat_id"`
	GroupID string `json:"groupId,omitempty" db:"group_id"`
}

// ChatRef builds a reference to a private chat.
func ChatRef(id string) ConversationRef { return ConversationRef{ChatID: id} }

// GroupRef builds a reference to a group.
func GroupRef(id string) ConversationRef { return ConversationRef{GroupID: id} }

// IsZero reports whether the reference points at nothing.
func (r ConversationRef) IsZero() bool { return r.ChatID == "" && r.GroupID == "" }

// IsGroup reports whether the reference points at a group.
func (r ConversationRef) IsGroup() bool { return r.GroupID != "" }

// Key returns a stable map key for the reference.
func (r ConversationRef) Key() string {
	if r.GroupID != "" {
		return "group:" + r.GroupID
	}
	return "chat:" + r.ChatID
}

// URL returns the in-app location for the conversation.
func (r ConversationRef) URL() string {
	if r.GroupID != "" {
		return "/groups/" + r.GroupID
	}
	return "/chats/" + r.ChatID
}

// ConversationSummary is the list-endpoint view of a conversation.
type ConversationSummary struct {
	Ref           ConversationRef `json:"ref"`
	Name          string          `json:"name,omitempty"`
	MemberIDs     []string        `json:"member_ids"`
	LastMessageAt *time.Time      `json:"last_message_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
