package models

// Inbound event names as seen by internal logic. Legacy wire aliases are
// mapped onto these at the ingress boundary (internal/wire), so nothing past
// that boundary ever sees an alias.
const (
	EventMessageNew      = "message:new"
	EventMessageUpdated  = "message:updated"
	EventDeleteForMe     = "message:deleteForMe"
	EventDeleteEveryone  = "message:deleteEveryone"
	EventReactionAdded   = "reaction:added"
	EventReadReceipts    = "messages:readReceipts"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventPresenceChanged = "presence:changed"
)

// Client-to-server command names.
const (
	CommandJoinChat   = "joinChat"
	CommandJoinGroup  = "joinGroup"
	CommandLeaveChat  = "leaveChat"
	CommandLeaveGroup = "leaveGroup"
	CommandTyping     = "typing"
	CommandStopTyping = "stopTyping"
	CommandPresence   = "presence"
)

// InboundEvent is a decoded transport event in canonical form. Name selects
// which of the optional fields are meaningful.
type InboundEvent struct {
	Name         string
	Conversation ConversationRef

	// message:new, message:updated
	Message *Message

	// message:deleteForMe, message:deleteEveryone, reaction:added,
	// priority/tag changes
	MessageID string

	// message:deleteForMe, reaction:added, typing, stopTyping,
	// messages:readReceipts, presence:changed
	UserID string

	// reaction:added
	Emoji string

	// messages:readReceipts
	MessageIDs []string
	ReadBy     []string

	// priority:changed, tag:changed carried via message:updated payloads
	Priority Priority
	Tags     []string

	// presence:changed
	Status string
}

// Mutation event names that locate an existing message by id.
const (
	EventPriorityChanged = "priority:changed"
	EventTagChanged      = "tag:changed"
)
