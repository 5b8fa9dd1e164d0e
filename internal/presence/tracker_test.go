package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingReporter struct {
	mu      sync.Mutex
	reports []Status
	err     error
}

func (r *recordingReporter) Report(_ context.Context, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, status)
	return r.err
}

func (r *recordingReporter) all() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status{}, r.reports...)
}

func newTestTracker(reporter Reporter, clock *fakeClock) *Tracker {
	return NewTracker(reporter,
		WithClock(clock.Now),
		WithIdleThreshold(5*time.Minute),
		WithSweepInterval(time.Hour), // sweeps driven manually in tests
	)
}

func TestInitReportsOnline(t *testing.T) {
	reporter := &recordingReporter{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)

	tracker.Init(context.Background())
	defer tracker.Dispose(context.Background())

	require.Equal(t, StatusOnline, tracker.Status())
	assert.Equal(t, []Status{StatusOnline}, reporter.all())
}

func TestIdleDegradesToAway(t *testing.T) {
	reporter := &recordingReporter{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)
	ctx := context.Background()

	tracker.Init(ctx)
	defer tracker.Dispose(ctx)

	clock.Advance(4 * time.Minute)
	tracker.Sweep(ctx)
	assert.Equal(t, StatusOnline, tracker.Status(), "below threshold stays online")

	clock.Advance(2 * time.Minute)
	tracker.Sweep(ctx)
	require.Equal(t, StatusAway, tracker.Status())
	assert.Equal(t, []Status{StatusOnline, StatusAway}, reporter.all())
}

func TestActivityFlipsAwayBackToOnline(t *testing.T) {
	reporter := &recordingReporter{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)
	ctx := context.Background()

	tracker.Init(ctx)
	defer tracker.Dispose(ctx)

	clock.Advance(10 * time.Minute)
	tracker.Sweep(ctx)
	require.Equal(t, StatusAway, tracker.Status())

	tracker.Activity(ctx)
	require.Equal(t, StatusOnline, tracker.Status())

	// Oscillation is allowed: idle again goes right back to away.
	clock.Advance(6 * time.Minute)
	tracker.Sweep(ctx)
	assert.Equal(t, StatusAway, tracker.Status())
	assert.Equal(t, []Status{StatusOnline, StatusAway, StatusOnline, StatusAway}, reporter.all())
}

func TestActivityWhileOnlineReportsNothing(t *testing.T) {
	reporter := &recordingReporter{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)
	ctx := context.Background()

	tracker.Init(ctx)
	defer tracker.Dispose(ctx)

	tracker.Activity(ctx)
	tracker.Activity(ctx)
	assert.Equal(t, []Status{StatusOnline}, reporter.all())
}

func TestDisposeForcesOffline(t *testing.T) {
	reporter := &recordingReporter{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)
	ctx := context.Background()

	tracker.Init(ctx)
	tracker.Dispose(ctx)

	require.Equal(t, StatusOffline, tracker.Status())
	assert.Equal(t, []Status{StatusOnline, StatusOffline}, reporter.all())

	// Second dispose is a no-op.
	tracker.Dispose(ctx)
	assert.Equal(t, []Status{StatusOnline, StatusOffline}, reporter.all())
}

func TestReportFailureIsSwallowed(t *testing.T) {
	reporter := &recordingReporter{err: assert.AnError}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)
	ctx := context.Background()

	tracker.Init(ctx)
	assert.Equal(t, StatusOnline, tracker.Status(), "state advances even when the report fails")
	tracker.Dispose(ctx)
}

func TestSignalsBeforeInitAreIgnored(t *testing.T) {
	reporter := &recordingReporter{}
	clock := &fakeClock{now: time.Unix(1000, 0)}
	tracker := newTestTracker(reporter, clock)

	tracker.Activity(context.Background())
	tracker.Sweep(context.Background())
	assert.Empty(t, reporter.all())
	assert.Equal(t, StatusOffline, tracker.Status())
}
