package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

func TestCountersConcurrentIncrements(t *testing.T) {
	for _, n := range []int{1, 100, 10000} {
		counters := NewCounters()

		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func(i int) {
				defer wg.Done()
				counters.RecordProcessed(domain.SensorMotion, i%2 == 0)
			}(i)
		}
		wg.Wait()

		snap := counters.Snapshot()
		assert.EqualValues(t, n, snap.Total[domain.SensorMotion], "n=%d", n)
		assert.EqualValues(t, (n+1)/2, snap.Critical[domain.SensorMotion], "n=%d", n)
	}
}

func TestSnapshotContainsEveryTypeAndIsDetached(t *testing.T) {
	counters := NewCounters()
	counters.RecordProcessed(domain.SensorAccess, true)
	counters.RecordError(domain.SensorTemperature)
	counters.RecordProcessed("SMOKE", true)

	snap := counters.Snapshot()
	for _, st := range domain.SensorTypes() {
		_, ok := snap.Total[st]
		assert.True(t, ok, st)
	}
	assert.EqualValues(t, 1, snap.Critical[domain.SensorAccess])
	assert.EqualValues(t, 1, snap.Errors[domain.SensorTemperature])
	assert.EqualValues(t, 1, snap.TotalEvents())

	counters.RecordProcessed(domain.SensorAccess, false)
	assert.EqualValues(t, 1, snap.Total[domain.SensorAccess])
}

type fakeAlertCounts struct {
	counts map[domain.AlertLevel]int64
	err    error
}

func (f fakeAlertCounts) CountUnresolvedByLevel(_ context.Context, level domain.AlertLevel) (int64, error) {
	return f.counts[level], f.err
}

func TestReporterDiagnostics(t *testing.T) {
	counters := NewCounters()
	counters.RecordProcessed(domain.SensorMotion, true)
	counters.RecordProcessed(domain.SensorAccess, false)

	occupancy := func() domain.PoolOccupancy {
		return domain.PoolOccupancy{Active: 2, PoolSize: 20, CoreSize: 20, MaxSize: 50}
	}
	reporter := NewReporter(counters, occupancy, fakeAlertCounts{counts: map[domain.AlertLevel]int64{domain.AlertCritical: 4}})

	diag, err := reporter.Diagnostics(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, diag.TotalEvents)
	assert.EqualValues(t, 1, diag.CriticalEvents)
	assert.Equal(t, 2, diag.Pool.Active)
	assert.EqualValues(t, 4, diag.UnresolvedByLevel[domain.AlertCritical])
	assert.Len(t, diag.UnresolvedByLevel, 4)
	assert.False(t, diag.GeneratedAt.IsZero())
}

func TestReporterPropagatesRepositoryError(t *testing.T) {
	reporter := NewReporter(NewCounters(), nil, fakeAlertCounts{err: errors.New("db down")})

	_, err := reporter.Diagnostics(context.Background())
	assert.ErrorContains(t, err, "db down")
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, domain.Message{Topic: topic, Payload: payload})
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func TestBroadcasterPublishesPeriodically(t *testing.T) {
	publisher := &recordingPublisher{}
	reporter := NewReporter(NewCounters(), nil, nil)
	broadcaster := NewBroadcaster(reporter, publisher, 10*time.Millisecond, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- broadcaster.Run(ctx) }()

	require.Eventually(t, func() bool { return publisher.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not stop")
	}

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Equal(t, domain.TopicStats, publisher.messages[0].Topic)
	assert.IsType(t, domain.Diagnostics{}, publisher.messages[0].Payload)
}

func TestBroadcasterCoalescesNotifications(t *testing.T) {
	publisher := &recordingPublisher{}
	broadcaster := NewBroadcaster(NewReporter(NewCounters(), nil, nil), publisher, time.Hour, logging.Discard())

	for i := 0; i < 50; i++ {
		broadcaster.Notify()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- broadcaster.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, publisher.count(), "pending notifications collapse into one snapshot")

	broadcaster.Notify()
	require.Eventually(t, func() bool { return publisher.count() == 2 }, time.Second, 5*time.Millisecond)
}
