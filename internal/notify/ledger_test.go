package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerFirstClaimWins(t *testing.T) {
	l := NewLedger()

	require.True(t, l.MarkPush("m1"))
	assert.False(t, l.MarkToast("m1"))
	assert.False(t, l.MarkPush("m1"))

	src, ok := l.Seen("m1")
	require.True(t, ok)
	assert.Equal(t, "push", src)
}

func TestLedgerSameTickRaceKeepsSingleClaim(t *testing.T) {
	// Both paths fire within the same tick: whichever marks first owns
	// click-routing, the other backs off. At most one visible surface.
	l := NewLedger()

	toastWon := l.MarkToast("m1")
	pushWon := l.MarkPush("m1")

	assert.True(t, toastWon != pushWon, "exactly one path may claim the id")
}

func TestLedgerIgnoresEmptyID(t *testing.T) {
	l := NewLedger()
	assert.False(t, l.MarkToast(""))
	assert.False(t, l.MarkPush(""))
}

func TestLedgerPrunesOldEntries(t *testing.T) {
	l := NewLedger()
	current := time.Unix(1000, 0)
	l.now = func() time.Time { return current }

	require.True(t, l.MarkPush("m1"))
	current = current.Add(retention + time.Minute)

	// After retention the id may be claimed again; the race window is over.
	assert.True(t, l.MarkToast("m1"))
}
