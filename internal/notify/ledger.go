package notify

import (
	"sync"
	"time"
)

// retention bounds the ledger; an id older than this can no longer race
// between delivery paths.
const retention = 10 * time.Minute

type source string

const (
	sourceToast source = "toast"
	sourcePush  source = "push"
)

type entry struct {
	source source
	at     time.Time
}

// Ledger is the shared processed-id set keyed by message id. It is advisory:
// the background worker runs in a separate process and reports its
// notifications after the fact, so a same-tick race can still produce one
// surface per path. The guarantee is at most one surface active for
// click-routing, not zero duplicate internal events.
type Ledger struct {
	mu   sync.Mutex
	seen map[string]entry
	now  func() time.Time
}

// NewLedger builds an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		seen: make(map[string]entry),
		now:  time.Now,
	}
}

// MarkToast claims a message id for the toast path. Returns false when the
// id already surfaced through either path.
func (l *Ledger) MarkToast(messageID string) bool {
	return l.mark(messageID, sourceToast)
}

// MarkPush records a push-path notification for the id. Returns false when
// the id already surfaced.
func (l *Ledger) MarkPush(messageID string) bool {
	return l.mark(messageID, sourcePush)
}

// Seen reports whether the id surfaced through any path, and through which.
func (l *Ledger) Seen(messageID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.seen[messageID]
	return string(e.source), ok
}

func (l *Ledger) mark(messageID string, src source) bool {
	if messageID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune()
	if _, ok := l.seen[messageID]; ok {
		return false
	}
	l.seen[messageID] = entry{source: src, at: l.now()}
	return true
}

func (l *Ledger) prune() {
	cutoff := l.now().Add(-retention)
	for id, e := range l.seen {
		if e.at.Before(cutoff) {
			delete(l.seen, id)
		}
	}
}
