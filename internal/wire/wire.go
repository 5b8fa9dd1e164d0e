// Package wire encodes and decodes transport envelopes. All accepted legacy
// event names are mapped to canonical names here, at the ingress boundary.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"ichat-sync/internal/models"
)

// Envelope is the frame exchanged over the websocket in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// aliases maps every accepted legacy wire name to its canonical event name.
var aliases = map[string]string{
	"receiveMessage": models.EventMessageNew,
	"messageUpdated": models.EventMessageUpdated,
	"messageDeleted": models.EventDeleteEveryone,
	"reactionAdded":  models.EventReactionAdded,
	"messages:read":  models.EventReadReceipts,
}

// Canonical resolves a wire event name to its canonical form.
func Canonical(name string) string {
	if canonical, ok := aliases[name]; ok {
		return canonical
	}
	return name
}

var ErrUnknownEvent = errors.New("unknown event")

type refPayload struct {
	ChatID  string `json:"chatId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
}

func (p refPayload) ref() models.ConversationRef {
	return models.ConversationRef{ChatID: p.ChatID, GroupID: p.GroupID}
}

type messagePayload struct {
	refPayload
	Message *models.Message `json:"message"`
}

type mutationPayload struct {
	refPayload
	MessageID string          `json:"messageId"`
	UserID    string          `json:"userId,omitempty"`
	Emoji     string          `json:"emoji,omitempty"`
	Priority  models.Priority `json:"priority,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
}

type readReceiptsPayload struct {
	refPayload
	MessageIDs []string `json:"messageIds"`
	UserID     string   `json:"userId,omitempty"`
	ReadBy     []string `json:"readBy,omitempty"`
}

type typingPayload struct {
	refPayload
	UserID string `json:"userId"`
}

type presencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// Decode parses a raw frame into a canonical InboundEvent.
func Decode(data []byte) (models.InboundEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.InboundEvent{}, fmt.Errorf("decode envelope: %w", err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope resolves aliases and parses the payload for the event.
func DecodeEnvelope(env Envelope) (models.InboundEvent, error) {
	name := Canonical(env.Event)
	ev := models.InboundEvent{Name: name}

	switch name {
	case models.EventMessageNew, models.EventMessageUpdated:
		var p messagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.Conversation = p.ref()
		ev.Message = p.Message
		if ev.Message != nil {
			if ev.Conversation.IsZero() {
				ev.Conversation = ev.Message.Conversation
			} else {
				ev.Message.Conversation = ev.Conversation
			}
			ev.MessageID = ev.Message.ID
		}
	case models.EventDeleteForMe, models.EventDeleteEveryone,
		models.EventReactionAdded, models.EventPriorityChanged, models.EventTagChanged:
		var p mutationPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.Conversation = p.ref()
		ev.MessageID = p.MessageID
		ev.UserID = p.UserID
		ev.Emoji = p.Emoji
		ev.Priority = p.Priority
		ev.Tags = p.Tags
	case models.EventReadReceipts:
		var p readReceiptsPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.Conversation = p.ref()
		ev.MessageIDs = p.MessageIDs
		ev.UserID = p.UserID
		ev.ReadBy = p.ReadBy
	case models.EventTyping, models.EventStopTyping:
		var p typingPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.Conversation = p.ref()
		ev.UserID = p.UserID
	case models.EventPresenceChanged:
		var p presencePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return ev, fmt.Errorf("decode %s: %w", name, err)
		}
		ev.UserID = p.UserID
		ev.Status = p.Status
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	return ev, nil
}

// Encode marshals an envelope for the given canonical event and payload.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// EventFrame builds the broadcast frame for a canonical event, the inverse
// of Decode. Used by the server hub; clients only encode commands.
func EventFrame(ev models.InboundEvent) ([]byte, error) {
	ref := refPayload{ChatID: ev.Conversation.ChatID, GroupID: ev.Conversation.GroupID}
	switch ev.Name {
	case models.EventMessageNew, models.EventMessageUpdated:
		return Encode(ev.Name, messagePayload{refPayload: ref, Message: ev.Message})
	case models.EventDeleteForMe, models.EventDeleteEveryone,
		models.EventReactionAdded, models.EventPriorityChanged, models.EventTagChanged:
		return Encode(ev.Name, mutationPayload{
			refPayload: ref,
			MessageID:  ev.MessageID,
			UserID:     ev.UserID,
			Emoji:      ev.Emoji,
			Priority:   ev.Priority,
			Tags:       ev.Tags,
		})
	case models.EventReadReceipts:
		return Encode(ev.Name, readReceiptsPayload{
			refPayload: ref,
			MessageIDs: ev.MessageIDs,
			UserID:     ev.UserID,
			ReadBy:     ev.ReadBy,
		})
	case models.EventTyping, models.EventStopTyping:
		return Encode(ev.Name, typingPayload{refPayload: ref, UserID: ev.UserID})
	case models.EventPresenceChanged:
		return Encode(ev.Name, presencePayload{UserID: ev.UserID, Status: ev.Status})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Name)
	}
}

// DecodeCommand parses a client-to-server command envelope.
func DecodeCommand(env Envelope) (string, models.ConversationRef, error) {
	switch env.Event {
	case models.CommandJoinChat, models.CommandJoinGroup,
		models.CommandLeaveChat, models.CommandLeaveGroup,
		models.CommandTyping, models.CommandStopTyping:
		var p refPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return "", models.ConversationRef{}, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return env.Event, p.ref(), nil
	default:
		return "", models.ConversationRef{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

// JoinCommand builds the room-subscription command for a conversation.
func JoinCommand(ref models.ConversationRef) ([]byte, error) {
	if ref.IsGroup() {
		return Encode(models.CommandJoinGroup, refPayload{GroupID: ref.GroupID})
	}
	return Encode(models.CommandJoinChat, refPayload{ChatID: ref.ChatID})
}

// LeaveCommand builds the room-unsubscription command for a conversation.
func LeaveCommand(ref models.ConversationRef) ([]byte, error) {
	if ref.IsGroup() {
		return Encode(models.CommandLeaveGroup, refPayload{GroupID: ref.GroupID})
	}
	return Encode(models.CommandLeaveChat, refPayload{ChatID: ref.ChatID})
}

// TypingCommand builds a typing or stopTyping command.
func TypingCommand(stop bool, ref models.ConversationRef, userID string) ([]byte, error) {
	name := models.CommandTyping
	if stop {
		name = models.CommandStopTyping
	}
	return Encode(name, typingPayload{
		refPayload: refPayload{ChatID: ref.ChatID, GroupID: ref.GroupID},
		UserID:     userID,
	})
}
