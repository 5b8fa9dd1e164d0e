// Package reconcile merges events from the live transport and from REST
// fetches into per-conversation ordered, deduplicated message lists.
package reconcile

import (
	"sort"
	"sync"

	"ichat-sync/internal/models"
	"ichat-sync/internal/observability"
)

// Outcome reports what applying an event did. Duplicates are a normal outcome,
// not an error, but must stay distinguishable from genuine updates.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeOrphanDropped  Outcome = "orphan_dropped"
	OutcomeStaleDiscarded Outcome = "stale_discarded"
	OutcomeIgnored        Outcome = "ignored"
)

type conversation struct {
	ref     models.ConversationRef
	byID    map[string]*models.Message
	ordered []*models.Message
	unread  int
}

// Engine is the message reconciliation engine. All state is in memory and is
// rebuilt from a REST snapshot on each cold start.
type Engine struct {
	mu     sync.Mutex
	selfID string
	convs  map[string]*conversation
	active models.ConversationRef

	onUnread func(models.ConversationRef, int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithUnreadListener registers a callback invoked whenever a conversation's
// unread counter changes.
func WithUnreadListener(fn func(models.ConversationRef, int)) Option {
	return func(e *Engine) { e.onUnread = fn }
}

// NewEngine builds an engine for the given local user.
func NewEngine(selfUserID string, opts ...Option) *Engine {
	e := &Engine{
		selfID: selfUserID,
		convs:  make(map[string]*conversation),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Activate marks the conversation the user is currently viewing. Hydrate
// responses for any other conversation are discarded as stale.
func (e *Engine) Activate(ref models.ConversationRef) {
	e.mu.Lock()
	e.active = ref
	e.mu.Unlock()
}

// Active returns the currently viewed conversation.
func (e *Engine) Active() models.ConversationRef {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Hydrate replaces the conversation state wholesale from a REST snapshot.
// Messages already known keep their identity: fields are copied onto the
// existing entries in place so UI memoization by pointer stays valid. Ids
// absent from the snapshot are dropped. A snapshot for a conversation the
// user has navigated away from is discarded.
func (e *Engine) Hydrate(ref models.ConversationRef, snapshot []models.Message) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active.Key() != ref.Key() {
		observability.IncReconcileOp("hydrate", string(OutcomeStaleDiscarded))
		return OutcomeStaleDiscarded
	}

	old := e.convs[ref.Key()]
	conv := &conversation{
		ref:  ref,
		byID: make(map[string]*models.Message, len(snapshot)),
	}

	for i := range snapshot {
		incoming := snapshot[i]
		if incoming.ID == "" {
			continue
		}
		if _, dup := conv.byID[incoming.ID]; dup {
			continue
		}
		var entry *models.Message
		if old != nil {
			if existing, ok := old.byID[incoming.ID]; ok {
				*existing = incoming
				entry = existing
			}
		}
		if entry == nil {
			copied := incoming
			entry = &copied
		}
		entry.Conversation = ref
		conv.byID[entry.ID] = entry
		conv.ordered = append(conv.ordered, entry)
	}

	sort.Slice(conv.ordered, func(i, j int) bool {
		return conv.ordered[i].OrderedBefore(conv.ordered[j])
	})

	e.convs[ref.Key()] = conv
	e.recomputeUnread(conv)
	observability.IncReconcileOp("hydrate", string(OutcomeApplied))
	return OutcomeApplied
}

// Apply merges one inbound event. Mutation events for ids not yet seen are
// dropped silently: the create event arrives independently and ordering
// between create and mutation is not assumed.
func (e *Engine) Apply(ev models.InboundEvent) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := e.apply(ev)
	observability.IncReconcileOp(ev.Name, string(outcome))
	return outcome
}

func (e *Engine) apply(ev models.InboundEvent) Outcome {
	switch ev.Name {
	case models.EventMessageNew:
		return e.applyNew(ev)
	case models.EventMessageUpdated:
		return e.applyUpdated(ev)
	case models.EventDeleteForMe:
		return e.mutate(ev, func(m *models.Message) {
			userID := ev.UserID
			if userID == "" {
				userID = e.selfID
			}
			if !m.DeletedFor(userID) {
				m.DeletedForUserIDs = append(m.DeletedForUserIDs, userID)
			}
			m.IsDeleted = m.DeletedFor(e.selfID)
		})
	case models.EventDeleteEveryone:
		return e.mutate(ev, func(m *models.Message) {
			m.DeletedForEveryone = true
			m.IsDeleted = true
		})
	case models.EventReactionAdded:
		return e.mutate(ev, func(m *models.Message) {
			for _, r := range m.Reactions {
				if r.Emoji == ev.Emoji && r.UserID == ev.UserID {
					return
				}
			}
			m.Reactions = append(m.Reactions, models.Reaction{Emoji: ev.Emoji, UserID: ev.UserID})
		})
	case models.EventReadReceipts:
		return e.applyReadReceipts(ev)
	case models.EventPriorityChanged:
		return e.mutate(ev, func(m *models.Message) {
			m.Priority = ev.Priority
		})
	case models.EventTagChanged:
		return e.mutate(ev, func(m *models.Message) {
			m.Tags = unionStrings(nil, ev.Tags)
		})
	default:
		return OutcomeIgnored
	}
}

// applyNew is the single rule that makes the concurrent delivery paths safe:
// a message id already present is a no-op, otherwise the message is inserted
// at its order-key position.
func (e *Engine) applyNew(ev models.InboundEvent) Outcome {
	if ev.Message == nil || ev.Message.ID == "" {
		return OutcomeIgnored
	}
	ref := ev.Conversation
	if ref.IsZero() {
		ref = ev.Message.Conversation
	}
	if ref.IsZero() {
		return OutcomeIgnored
	}

	conv := e.conversationFor(ref)
	if _, exists := conv.byID[ev.Message.ID]; exists {
		return OutcomeDuplicate
	}

	copied := *ev.Message
	copied.Conversation = ref
	entry := &copied
	conv.byID[entry.ID] = entry
	conv.ordered = insertOrdered(conv.ordered, entry)
	e.recomputeUnread(conv)
	return OutcomeApplied
}

func (e *Engine) applyUpdated(ev models.InboundEvent) Outcome {
	if ev.Message == nil || ev.Message.ID == "" {
		return OutcomeIgnored
	}
	conv, ok := e.lookup(ev.Conversation)
	if !ok {
		return OutcomeOrphanDropped
	}
	existing, ok := conv.byID[ev.Message.ID]
	if !ok {
		return OutcomeOrphanDropped
	}

	existing.Content = ev.Message.Content
	existing.Type = ev.Message.Type
	existing.EditedAt = ev.Message.EditedAt
	existing.Priority = ev.Message.Priority
	existing.Tags = unionStrings(nil, ev.Message.Tags)
	e.recomputeUnread(conv)
	return OutcomeApplied
}

func (e *Engine) applyReadReceipts(ev models.InboundEvent) Outcome {
	conv, ok := e.lookup(ev.Conversation)
	if !ok {
		return OutcomeOrphanDropped
	}

	matched := false
	applied := false
	for _, id := range ev.MessageIDs {
		m, ok := conv.byID[id]
		if !ok {
			continue
		}
		matched = true
		// Union, never replace: a partial update from one delivery path must
		// not erase readers learned from another.
		merged := unionStrings(m.ReadBy, ev.ReadBy)
		if ev.UserID != "" {
			merged = unionStrings(merged, []string{ev.UserID})
		}
		if len(merged) != len(m.ReadBy) {
			applied = true
		}
		m.ReadBy = merged
	}
	if !matched {
		return OutcomeOrphanDropped
	}
	if !applied {
		return OutcomeDuplicate
	}
	e.recomputeUnread(conv)
	return OutcomeApplied
}

func (e *Engine) mutate(ev models.InboundEvent, fn func(*models.Message)) Outcome {
	if ev.MessageID == "" {
		return OutcomeIgnored
	}
	conv, ok := e.lookup(ev.Conversation)
	if !ok {
		return OutcomeOrphanDropped
	}
	m, ok := conv.byID[ev.MessageID]
	if !ok {
		return OutcomeOrphanDropped
	}
	fn(m)
	e.recomputeUnread(conv)
	return OutcomeApplied
}

// View returns the ordered messages of a conversation. The returned slice is
// a copy; the Message pointers are the live entries.
func (e *Engine) View(ref models.ConversationRef) []*models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.lookup(ref)
	if !ok {
		return nil
	}
	out := make([]*models.Message, len(conv.ordered))
	copy(out, conv.ordered)
	return out
}

// Lookup returns the live entry for a message id, if known.
func (e *Engine) Lookup(ref models.ConversationRef, messageID string) (*models.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.lookup(ref)
	if !ok {
		return nil, false
	}
	m, ok := conv.byID[messageID]
	return m, ok
}

// UnreadCount returns the current unread counter for a conversation.
func (e *Engine) UnreadCount(ref models.ConversationRef) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	conv, ok := e.lookup(ref)
	if !ok {
		return 0
	}
	return conv.unread
}

// Teardown drops all local state for a conversation. The only way message
// entries are ever released.
func (e *Engine) Teardown(ref models.ConversationRef) {
	e.mu.Lock()
	delete(e.convs, ref.Key())
	e.mu.Unlock()
}

func (e *Engine) conversationFor(ref models.ConversationRef) *conversation {
	conv, ok := e.convs[ref.Key()]
	if !ok {
		conv = &conversation{ref: ref, byID: make(map[string]*models.Message)}
		e.convs[ref.Key()] = conv
	}
	return conv
}

func (e *Engine) lookup(ref models.ConversationRef) (*conversation, bool) {
	conv, ok := e.convs[ref.Key()]
	return conv, ok
}

func (e *Engine) recomputeUnread(conv *conversation) {
	count := 0
	for _, m := range conv.ordered {
		if m.SenderID == e.selfID {
			continue
		}
		if m.DeletedFor(e.selfID) {
			continue
		}
		if m.ReadByUser(e.selfID) {
			continue
		}
		count++
	}
	if count != conv.unread {
		conv.unread = count
		if e.onUnread != nil {
			e.onUnread(conv.ref, count)
		}
	}
}

func insertOrdered(ordered []*models.Message, entry *models.Message) []*models.Message {
	idx := sort.Search(len(ordered), func(i int) bool {
		return entry.OrderedBefore(ordered[i])
	})
	ordered = append(ordered, nil)
	copy(ordered[idx+1:], ordered[idx:])
	ordered[idx] = entry
	return ordered
}

func unionStrings(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range extra {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
