package sensor

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"security-monitor-service/internal/domain"
)

// Strategy classifies readings of a single sensor type and simulates new ones.
type Strategy interface {
	Type() domain.SensorType
	// Process stamps processing metadata and sets Critical.
	Process(ctx context.Context, reading domain.Reading) (domain.Reading, error)
	RequiresAlert(value float64) bool
	Simulate() domain.Reading
}

// Options holds the settings shared by every strategy.
type Options struct {
	// Seed drives the simulator. Zero means a time-based seed.
	Seed       int64
	LatencyMin time.Duration
	LatencyMax time.Duration
	Now        func() time.Time
}

func (o Options) normalize() Options {
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.LatencyMin < 0 {
		o.LatencyMin = 0
	}
	if o.LatencyMax < o.LatencyMin {
		o.LatencyMax = o.LatencyMin
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// base carries what every strategy shares: clock, latency jitter and the
// seeded simulator PRNG. mu guards rnd and the simulator state of the embedding type.
type base struct {
	sensorType domain.SensorType
	idPrefix   string
	unit       string
	locations  []string
	opts       Options

	mu  sync.Mutex
	rnd *rand.Rand

	jitterMu sync.Mutex
	jitter   *rand.Rand
}

func (b *base) init(sensorType domain.SensorType, idPrefix, unit string, locations []string, opts Options) {
	opts = opts.normalize()
	b.sensorType = sensorType
	b.idPrefix = idPrefix
	b.unit = unit
	b.locations = locations
	b.opts = opts
	b.rnd = rand.New(rand.NewSource(opts.Seed))
	b.jitter = rand.New(rand.NewSource(opts.Seed ^ 0x5deece66d))
}

func (b *base) Type() domain.SensorType {
	return b.sensorType
}

// process runs the common part of Process. classify is invoked exactly once.
func (b *base) process(ctx context.Context, reading domain.Reading, classify func(float64) bool) (domain.Reading, error) {
	if reading.Type != b.sensorType {
		return reading, fmt.Errorf("%w: %s strategy received %s reading", domain.ErrInvalidReading, b.sensorType, reading.Type)
	}
	if err := b.simulateLatency(ctx); err != nil {
		return reading, err
	}

	reading.Critical = classify(reading.Value)

	processedAt := b.opts.Now()
	if processedAt.Before(reading.ObservedAt) {
		processedAt = reading.ObservedAt
	}
	reading.ProcessedAt = processedAt
	reading.ProcessedBy = domain.WorkerName(ctx)
	reading.ProcessingDurationMs = processedAt.Sub(reading.ObservedAt).Milliseconds()
	return reading, nil
}

func (b *base) simulateLatency(ctx context.Context) error {
	delay := b.opts.LatencyMin
	if spread := b.opts.LatencyMax - b.opts.LatencyMin; spread > 0 {
		b.jitterMu.Lock()
		delay += time.Duration(b.jitter.Int63n(int64(spread) + 1))
		b.jitterMu.Unlock()
	}
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("simulated processing interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// newReading builds a simulated reading. Callers hold b.mu.
func (b *base) newReading(value float64, description string) domain.Reading {
	return domain.Reading{
		Type:        b.sensorType,
		SourceID:    b.sourceIDLocked(),
		Location:    b.locations[b.rnd.Intn(len(b.locations))],
		Value:       value,
		Unit:        b.unit,
		Description: description,
		ObservedAt:  b.opts.Now(),
	}
}

func (b *base) sourceIDLocked() string {
	id, err := uuid.NewRandomFromReader(b.rnd)
	if err != nil {
		id = uuid.New()
	}
	return b.idPrefix + "-" + strings.SplitN(id.String(), "-", 2)[0]
}

// boundedGaussian draws from N(mean, stddev) and reflects overshoots back
// inside [lower, upper] at a tenth of their distance.
func boundedGaussian(rnd *rand.Rand, mean, stddev, lower, upper float64) float64 {
	value := mean + rnd.NormFloat64()*stddev
	if value < lower {
		value = lower + (lower-value)*0.1
	}
	if value > upper {
		value = upper - (value-upper)*0.1
	}
	return value
}

func clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
