package pipeline

import (
	"context"
	"fmt"
	"time"

	"security-monitor-service/internal/application/alert"
	"security-monitor-service/internal/application/sensor"
	"security-monitor-service/internal/application/stats"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

// DefaultFinishTimeout bounds the steps that run after a reading is persisted.
const DefaultFinishTimeout = 30 * time.Second

// StrategyLookup resolves the strategy owning a sensor type.
type StrategyLookup interface {
	Lookup(sensorType domain.SensorType) (sensor.Strategy, error)
}

// AlertHandler receives every persisted critical reading.
type AlertHandler interface {
	OnCriticalReading(ctx context.Context, reading domain.Reading) (alert.Decision, error)
}

// StatsNotifier is told when the counters changed. It must not block.
type StatsNotifier interface {
	Notify()
}

// Pipeline processes one reading end to end: classify, persist, count,
// publish, then alert when critical.
type Pipeline struct {
	strategies StrategyLookup
	repo       domain.ReadingWriter
	counters   *stats.Counters
	publisher  domain.Publisher
	alerts     AlertHandler
	stats      StatsNotifier
	logger     *logging.Logger

	finishTimeout time.Duration
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithAlerts routes critical readings to h.
func WithAlerts(h AlertHandler) Option {
	return func(p *Pipeline) { p.alerts = h }
}

// WithStatsNotifier signals n after every persisted reading.
func WithStatsNotifier(n StatsNotifier) Option {
	return func(p *Pipeline) { p.stats = n }
}

// WithFinishTimeout bounds the post-persist steps. They outlive pool
// cancellation but never run longer than d.
func WithFinishTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.finishTimeout = d
		}
	}
}

func New(strategies StrategyLookup, repo domain.ReadingWriter, counters *stats.Counters, publisher domain.Publisher, logger *logging.Logger, opts ...Option) *Pipeline {
	if counters == nil {
		counters = stats.NewCounters()
	}
	p := &Pipeline{
		strategies: strategies,
		repo:       repo,
		counters:   counters,
		publisher:  publisher,
		logger:     logger.With("component", "pipeline"),

		finishTimeout: DefaultFinishTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process implements domain.ReadingProcessor. Cancellation is honoured up to
// persistence; a persisted reading always completes the remaining steps.
func (p *Pipeline) Process(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	if err := reading.Validate(); err != nil {
		return reading, p.fail(reading, "validate", err)
	}

	strategy, err := p.strategies.Lookup(reading.Type)
	if err != nil {
		return reading, p.fail(reading, "lookup", err)
	}

	processed, err := strategy.Process(ctx, reading)
	if err != nil {
		return reading, p.fail(reading, "process", err)
	}

	if err := ctx.Err(); err != nil {
		return processed, p.fail(processed, "cancelled", err)
	}

	saved, err := p.repo.SaveReading(ctx, processed)
	if err != nil {
		return processed, p.fail(processed, "persist", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.finishTimeout)
	defer cancel()

	p.counters.RecordProcessed(saved.Type, saved.Critical)
	metrics.RecordReading(string(saved.Type), saved.Critical, time.Duration(saved.ProcessingDurationMs)*time.Millisecond)

	p.publish(ctx, saved)
	if p.stats != nil {
		p.stats.Notify()
	}

	if saved.Critical && p.alerts != nil {
		decision, err := p.alerts.OnCriticalReading(ctx, saved)
		switch {
		case err != nil:
			metrics.RecordReadingError(string(saved.Type), "alert")
			p.logger.Error("alert handling failed", logging.AttachError(err, "readingId", saved.ID)...)
		case decision.Created:
			p.logger.Debug("alert raised", "readingId", saved.ID, "alertId", decision.Alert.ID)
		}
	}

	p.logger.Debug("reading processed",
		"id", saved.ID, "type", string(saved.Type), "critical", saved.Critical, "worker", saved.ProcessedBy)
	return saved, nil
}

func (p *Pipeline) publish(ctx context.Context, reading domain.Reading) {
	if p.publisher == nil {
		return
	}
	msg := domain.NewReadingMessage(reading)
	for _, topic := range []string{reading.Type.Topic(), domain.TopicSensorEvents} {
		if err := p.publisher.Publish(ctx, topic, msg); err != nil {
			p.logger.Debug("reading publish failed", logging.AttachError(err, "topic", topic)...)
		}
	}
}

func (p *Pipeline) fail(reading domain.Reading, stage string, err error) error {
	p.counters.RecordError(reading.Type)
	metrics.RecordReadingError(string(reading.Type), stage)
	p.logger.Warn("reading failed", logging.AttachError(err, "stage", stage, "sourceId", reading.SourceID)...)
	return fmt.Errorf("%s reading %s: %w", stage, reading.SourceID, err)
}

var _ domain.ReadingProcessor = (*Pipeline)(nil)
