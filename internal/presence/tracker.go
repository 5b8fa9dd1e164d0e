// Package presence derives the local user's online/away/offline status from
// activity signals and reports transitions fire-and-forget.
package presence

import (
	"context"
	"log"
	"sync"
	"time"
)

// Status is the reported presence state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

const (
	// DefaultIdleThreshold is how long without activity before online
	// degrades to away.
	DefaultIdleThreshold = 5 * time.Minute
	// DefaultSweepInterval is how often the idle threshold is checked.
	DefaultSweepInterval = time.Minute
)

// Reporter delivers a presence transition to the server. Failures are logged
// and never retried; presence tolerates staleness.
type Reporter interface {
	Report(ctx context.Context, status Status) error
}

// Tracker is an explicitly constructed presence service. It holds no package
// state: Init starts it, Dispose forces an offline report and stops it.
type Tracker struct {
	mu           sync.Mutex
	status       Status
	lastActivity time.Time
	initialized  bool

	reporter  Reporter
	threshold time.Duration
	sweep     time.Duration
	now       func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIdleThreshold overrides the online-to-away threshold.
func WithIdleThreshold(d time.Duration) Option {
	return func(t *Tracker) { t.threshold = d }
}

// WithSweepInterval overrides how often idleness is checked.
func WithSweepInterval(d time.Duration) Option {
	return func(t *Tracker) { t.sweep = d }
}

// NewTracker builds a tracker; call Init to start it.
func NewTracker(reporter Reporter, opts ...Option) *Tracker {
	t := &Tracker{
		status:    StatusOffline,
		reporter:  reporter,
		threshold: DefaultIdleThreshold,
		sweep:     DefaultSweepInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init reports online and starts the periodic idle sweep.
func (t *Tracker) Init(ctx context.Context) {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return
	}
	t.initialized = true
	t.lastActivity = t.now()
	t.mu.Unlock()

	sweepCtx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	t.mu.Unlock()

	t.transition(sweepCtx, StatusOnline)

	go t.loop(sweepCtx)
}

func (t *Tracker) loop(ctx context.Context) {
	defer close(t.done)
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep applies the idle threshold once. Exposed so tests can drive time
// without the ticker.
func (t *Tracker) Sweep(ctx context.Context) {
	t.mu.Lock()
	idle := t.initialized &&
		t.status == StatusOnline &&
		t.now().Sub(t.lastActivity) >= t.threshold
	t.mu.Unlock()

	if idle {
		t.transition(ctx, StatusAway)
	}
}

// Activity records a local interaction signal (pointer, key, scroll, touch).
// Away flips back to online immediately.
func (t *Tracker) Activity(ctx context.Context) {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return
	}
	t.lastActivity = t.now()
	wasAway := t.status == StatusAway
	t.mu.Unlock()

	if wasAway {
		t.transition(ctx, StatusOnline)
	}
}

// Status returns the current presence state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Dispose forces an offline report and stops the sweep. Safe to call twice.
func (t *Tracker) Dispose(ctx context.Context) {
	t.mu.Lock()
	if !t.initialized {
		t.mu.Unlock()
		return
	}
	t.initialized = false
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	t.report(ctx, StatusOffline)
	t.mu.Lock()
	t.status = StatusOffline
	t.mu.Unlock()
}

func (t *Tracker) transition(ctx context.Context, next Status) {
	t.mu.Lock()
	if t.status == next {
		t.mu.Unlock()
		return
	}
	t.status = next
	t.mu.Unlock()

	t.report(ctx, next)
}

func (t *Tracker) report(ctx context.Context, status Status) {
	if t.reporter == nil {
		return
	}
	if err := t.reporter.Report(ctx, status); err != nil {
		log.Printf("presence report %s failed: %v", status, err)
	}
}
