package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/application/alert"
	"security-monitor-service/internal/application/pipeline"
	"security-monitor-service/internal/application/sensor"
	"security-monitor-service/internal/application/stats"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/pubsub"
	"security-monitor-service/internal/infrastructure/repository/memory"
	"security-monitor-service/internal/logging"
)

type alertRecorder struct {
	mu       sync.Mutex
	readings []domain.Reading
	err      error
}

func (a *alertRecorder) OnCriticalReading(_ context.Context, r domain.Reading) (alert.Decision, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readings = append(a.readings, r)
	return alert.Decision{Created: a.err == nil}, a.err
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.readings)
}

type statsRecorder struct {
	mu    sync.Mutex
	calls int
}

func (s *statsRecorder) Notify() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

type brokenWriter struct{}

func (brokenWriter) SaveReading(_ context.Context, r domain.Reading) (domain.Reading, error) {
	return r, errors.New("connection reset")
}

func registry() *sensor.Registry {
	return sensor.NewDefaultRegistry(sensor.Config{Options: sensor.Options{Seed: 42}})
}

func observed(sensorType domain.SensorType, location string, value float64) domain.Reading {
	return domain.Reading{
		Type:       sensorType,
		SourceID:   string(sensorType) + "-1",
		Location:   location,
		Value:      value,
		ObservedAt: time.Now().UTC(),
	}
}

func TestPipelinePersistsCountsPublishesAndAlerts(t *testing.T) {
	repo := memory.New()
	counters := stats.NewCounters()
	broker := pubsub.NewBroker(logging.Discard())
	defer broker.Close()
	sub, err := broker.Subscribe("sensors/*", 8)
	require.NoError(t, err)

	alerts := &alertRecorder{}
	snapshots := &statsRecorder{}
	p := pipeline.New(registry(), repo, counters, broker, logging.Discard(),
		pipeline.WithAlerts(alerts), pipeline.WithStatsNotifier(snapshots))

	ctx := domain.WithWorkerName(context.Background(), "sensor-processor-7")
	out, err := p.Process(ctx, observed(domain.SensorTemperature, "Reactor", 62))
	require.NoError(t, err)

	assert.NotZero(t, out.ID)
	assert.True(t, out.Critical)
	assert.Equal(t, "sensor-processor-7", out.ProcessedBy)
	assert.False(t, out.ProcessedAt.Before(out.ObservedAt))

	stored, err := repo.FindByType(context.Background(), domain.SensorTemperature)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	snap := counters.Snapshot()
	assert.EqualValues(t, 1, snap.Total[domain.SensorTemperature])
	assert.EqualValues(t, 1, snap.Critical[domain.SensorTemperature])

	var topics []string
	for i := 0; i < 2; i++ {
		select {
		case msg := <-sub.C():
			topics = append(topics, msg.Topic)
		case <-time.After(time.Second):
			t.Fatal("reading was not published")
		}
	}
	assert.ElementsMatch(t, []string{"sensors/temperature", "sensors/events"}, topics)

	assert.Equal(t, 1, alerts.count())
	assert.Equal(t, 1, snapshots.calls)
}

func TestPipelineSkipsAlertForNormalReading(t *testing.T) {
	alerts := &alertRecorder{}
	counters := stats.NewCounters()
	p := pipeline.New(registry(), memory.New(), counters, nil, logging.Discard(), pipeline.WithAlerts(alerts))

	out, err := p.Process(context.Background(), observed(domain.SensorAccess, "Lobby", 0))
	require.NoError(t, err)
	assert.False(t, out.Critical)
	assert.Zero(t, alerts.count())
	assert.EqualValues(t, 1, counters.Snapshot().Total[domain.SensorAccess])
	assert.Zero(t, counters.Snapshot().Critical[domain.SensorAccess])
}

func TestPipelineAlertFailureKeepsReading(t *testing.T) {
	alerts := &alertRecorder{err: errors.New("alert store down")}
	p := pipeline.New(registry(), memory.New(), nil, nil, logging.Discard(), pipeline.WithAlerts(alerts))

	out, err := p.Process(context.Background(), observed(domain.SensorAccess, "Armory", 4))
	require.NoError(t, err)
	assert.True(t, out.Critical)
	assert.Equal(t, 1, alerts.count())
}

type stalledAlerts struct{}

func (stalledAlerts) OnCriticalReading(ctx context.Context, _ domain.Reading) (alert.Decision, error) {
	<-ctx.Done()
	return alert.Decision{}, ctx.Err()
}

func TestPipelineBoundsStepsAfterPersist(t *testing.T) {
	repo := memory.New()
	p := pipeline.New(registry(), repo, nil, nil, logging.Discard(),
		pipeline.WithAlerts(stalledAlerts{}),
		pipeline.WithFinishTimeout(50*time.Millisecond),
	)

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), observed(domain.SensorAccess, "Armory", 5))
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("post-persist steps were not bounded")
	}

	n, err := repo.CountByType(context.Background(), domain.SensorAccess)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPipelineHonoursCancellationBeforePersist(t *testing.T) {
	repo := memory.New()
	counters := stats.NewCounters()
	p := pipeline.New(registry(), repo, counters, nil, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Process(ctx, observed(domain.SensorMotion, "Vault", 3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := repo.CountByType(context.Background(), domain.SensorMotion)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.EqualValues(t, 1, counters.Snapshot().Errors[domain.SensorMotion])
	assert.Zero(t, counters.Snapshot().Total[domain.SensorMotion])
}

func TestPipelineRejectsInvalidAndUnknownReadings(t *testing.T) {
	accessOnly, err := sensor.NewRegistry(sensor.NewAccess(sensor.AccessConfig{}, sensor.Options{Seed: 1}))
	require.NoError(t, err)
	p := pipeline.New(accessOnly, memory.New(), nil, nil, logging.Discard())

	_, err = p.Process(context.Background(), domain.Reading{Type: domain.SensorAccess})
	assert.ErrorIs(t, err, domain.ErrInvalidReading)

	_, err = p.Process(context.Background(), observed(domain.SensorMotion, "Vault", 1))
	assert.ErrorIs(t, err, domain.ErrUnknownSensorType)
}

func TestPipelinePersistFailure(t *testing.T) {
	counters := stats.NewCounters()
	alerts := &alertRecorder{}
	p := pipeline.New(registry(), brokenWriter{}, counters, nil, logging.Discard(), pipeline.WithAlerts(alerts))

	_, err := p.Process(context.Background(), observed(domain.SensorAccess, "Armory", 9))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist")
	assert.Zero(t, alerts.count())
	assert.EqualValues(t, 1, counters.Snapshot().Errors[domain.SensorAccess])
}
