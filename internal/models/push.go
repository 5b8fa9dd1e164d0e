package models

import "time"

// PushData carries the navigation target of a push payload.
type PushData struct {
	ChatID  string `json:"chatId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	URL     string `json:"url,omitempty"`
}

// PushPayload is delivered out-of-band to the push delivery worker.
type PushPayload struct {
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Icon         string   `json:"icon,omitempty"`
	Badge        string   `json:"badge,omitempty"`
	Data         PushData `json:"data"`
	Tag          string   `json:"tag,omitempty"`
	MessageID    string   `json:"messageId,omitempty"`
	SoundEnabled *bool    `json:"soundEnabled,omitempty"`
}

// Ref derives the conversation reference from the payload data.
func (p PushPayload) Ref() ConversationRef {
	if p.Data.GroupID != "" {
		return GroupRef(p.Data.GroupID)
	}
	if p.Data.ChatID != "" {
		return ChatRef(p.Data.ChatID)
	}
	return ConversationRef{}
}

// PushSubscriptionRecord is an opaque subscription descriptor registered with
// the push relay. Persisted server-side only.
type PushSubscriptionRecord struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Endpoint  string            `json:"endpoint"`
	Keys      map[string]string `json:"keys"`
	CreatedAt time.Time         `json:"created_at"`
}

// NotificationEvent is an in-app toast. Its ID equals the originating message
// id when one exists, which is what keeps the delivery paths from raising the
// same notification twice.
type NotificationEvent struct {
	ID           string
	Type         string
	Title        string
	Body         string
	Conversation ConversationRef
	Priority     Priority
	OnActivate   func()
}
