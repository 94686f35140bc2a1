package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/domain"
)

func TestLedgerWindow(t *testing.T) {
	l := NewLedger(time.Minute)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	key := Key(domain.SensorAccess, "Armory")
	assert.Equal(t, "ACCESS@Armory", key)

	_, _, ok := l.TryAcquire(key, t0)
	require.True(t, ok)

	_, remaining, ok := l.TryAcquire(key, t0.Add(59*time.Second))
	assert.False(t, ok)
	assert.Equal(t, time.Second, remaining)

	_, _, ok = l.TryAcquire(key, t0.Add(time.Minute))
	assert.True(t, ok, "a gap equal to the window is allowed")

	last, ok := l.Last(key)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), last)
}

func TestLedgerReleaseRestoresPrevious(t *testing.T) {
	l := NewLedger(time.Minute)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, _, ok := l.TryAcquire("k", t0)
	require.True(t, ok)

	claim, _, ok := l.TryAcquire("k", t0.Add(2*time.Minute))
	require.True(t, ok)
	assert.True(t, l.Release(claim))

	last, _ := l.Last("k")
	assert.Equal(t, t0, last)
	assert.False(t, l.Release(claim), "second release is a no-op")
}

func TestLedgerReleaseLosesToNewerClaim(t *testing.T) {
	l := NewLedger(0)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	stale, _, _ := l.TryAcquire("k", t0)
	_, _, ok := l.TryAcquire("k", t0.Add(time.Second))
	require.True(t, ok)

	assert.False(t, l.Release(stale))
	last, _ := l.Last("k")
	assert.Equal(t, t0.Add(time.Second), last)
}

func TestLedgerReleaseOfFirstClaimClearsSlot(t *testing.T) {
	l := NewLedger(time.Minute)
	claim, _, _ := l.TryAcquire("k", time.Unix(100, 0))

	require.True(t, l.Release(claim))
	_, ok := l.Last("k")
	assert.False(t, ok)
	assert.Zero(t, l.Len())
	assert.False(t, l.Release(Claim{}))
}
