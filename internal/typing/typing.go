// Package typing implements the per-conversation typing indicator: a
// sender-side silence debounce and a receiver-side set of typing users.
package typing

import (
	"sort"
	"sync"
	"time"

	"ichat-sync/internal/models"
)

// DefaultSilenceWindow is how long without a StartTyping call before the
// stop event fires on its own.
const DefaultSilenceWindow = time.Second

// Emitter sends typing events out, normally the transport manager.
type Emitter interface {
	EmitTyping(ref models.ConversationRef) error
	EmitStopTyping(ref models.ConversationRef) error
}

// Sender debounces local keystrokes into typing/stopTyping events.
type Sender struct {
	mu      sync.Mutex
	emitter Emitter
	silence time.Duration
	bursts  map[string]*burst
}

type burst struct {
	timer    *time.Timer
	deadline time.Time
}

// NewSender builds a sender with the given silence window; zero means the
// default one second.
func NewSender(emitter Emitter, silence time.Duration) *Sender {
	if silence <= 0 {
		silence = DefaultSilenceWindow
	}
	return &Sender{
		emitter: emitter,
		silence: silence,
		bursts:  make(map[string]*burst),
	}
}

// StartTyping emits a typing event on the first call and re-arms the silence
// timer on every call. When the timer fires with no further calls, a single
// stop-typing event is emitted.
func (s *Sender) StartTyping(ref models.ConversationRef) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ref.Key()
	deadline := time.Now().Add(s.silence)
	if b, ok := s.bursts[key]; ok {
		b.deadline = deadline
		b.timer.Reset(s.silence)
		return
	}

	_ = s.emitter.EmitTyping(ref)
	b := &burst{deadline: deadline}
	b.timer = time.AfterFunc(s.silence, func() {
		s.expire(ref)
	})
	s.bursts[key] = b
}

func (s *Sender) expire(ref models.ConversationRef) {
	s.mu.Lock()
	key := ref.Key()
	b, ok := s.bursts[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	// A StartTyping may have re-armed between the timer firing and this
	// lock; the deadline is the source of truth.
	if remaining := time.Until(b.deadline); remaining > 0 {
		b.timer.Reset(remaining)
		s.mu.Unlock()
		return
	}
	delete(s.bursts, key)
	s.mu.Unlock()

	_ = s.emitter.EmitStopTyping(ref)
}

// Close cancels all pending timers without emitting stop events.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.bursts {
		b.timer.Stop()
		delete(s.bursts, key)
	}
}

// Set is the receiver side: who is typing in each conversation right now.
// No receiver-side timeout is enforced beyond trusting the sender's stop
// event.
type Set struct {
	mu    sync.RWMutex
	byRef map[string]map[string]struct{}
}

// NewSet builds an empty receiver set.
func NewSet() *Set {
	return &Set{byRef: make(map[string]map[string]struct{})}
}

// OnTyping records a user as typing in a conversation.
func (t *Set) OnTyping(userID string, ref models.ConversationRef) {
	if userID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.byRef[ref.Key()]
	if !ok {
		users = make(map[string]struct{})
		t.byRef[ref.Key()] = users
	}
	users[userID] = struct{}{}
}

// OnStopTyping removes a user from the conversation's typing set.
func (t *Set) OnStopTyping(userID string, ref models.ConversationRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	users, ok := t.byRef[ref.Key()]
	if !ok {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.byRef, ref.Key())
	}
}

// TypingUsers returns the sorted user ids currently typing in a conversation.
func (t *Set) TypingUsers(ref models.ConversationRef) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	users := t.byRef[ref.Key()]
	if len(users) == 0 {
		return nil
	}
	out := make([]string, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
