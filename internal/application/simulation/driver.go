package simulation

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"security-monitor-service/internal/application/worker"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

const (
	DefaultInterval          = 5 * time.Second
	DefaultMinEvents         = 1
	DefaultMaxEvents         = 3
	DefaultHighLoadInterval  = 30 * time.Second
	DefaultHighLoadBatchSize = 50
)

// Submitter accepts batches of readings for concurrent processing.
type Submitter interface {
	SubmitBatch(readings []domain.Reading) *worker.BatchFuture
}

// Config controls the simulation cadence.
type Config struct {
	Enabled           bool
	Interval          time.Duration
	MinEvents         int
	MaxEvents         int
	HighLoadEnabled   bool
	HighLoadInterval  time.Duration
	HighLoadBatchSize int
	// Seed of zero means a time-based seed.
	Seed int64
}

func (c Config) normalize() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.MinEvents <= 0 {
		c.MinEvents = DefaultMinEvents
	}
	if c.MaxEvents < c.MinEvents {
		c.MaxEvents = c.MinEvents
	}
	if c.HighLoadInterval <= 0 {
		c.HighLoadInterval = DefaultHighLoadInterval
	}
	if c.HighLoadBatchSize <= 0 {
		c.HighLoadBatchSize = DefaultHighLoadBatchSize
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	return c
}

// Driver periodically draws readings from the simulators and submits them.
type Driver struct {
	cfg        Config
	simulators []domain.ReadingSimulator
	submitter  Submitter
	logger     *logging.Logger

	enabled atomic.Bool

	mu  sync.Mutex
	rnd *rand.Rand
	// stopped is set under mu once Run starts waiting on pending.
	stopped bool

	pending sync.WaitGroup
}

func New(cfg Config, simulators []domain.ReadingSimulator, submitter Submitter, logger *logging.Logger) *Driver {
	cfg = cfg.normalize()
	d := &Driver{
		cfg:        cfg,
		simulators: simulators,
		submitter:  submitter,
		logger:     logger.With("component", "simulation"),
		rnd:        rand.New(rand.NewSource(cfg.Seed)),
	}
	d.enabled.Store(cfg.Enabled)
	return d
}

func (d *Driver) Enable()       { d.enabled.Store(true) }
func (d *Driver) Disable()      { d.enabled.Store(false) }
func (d *Driver) Enabled() bool { return d.enabled.Load() }

// Run ticks until ctx is cancelled and then waits for outstanding batches.
func (d *Driver) Run(ctx context.Context) error {
	normal := time.NewTicker(d.cfg.Interval)
	defer normal.Stop()

	var highLoad <-chan time.Time
	if d.cfg.HighLoadEnabled {
		t := time.NewTicker(d.cfg.HighLoadInterval)
		defer t.Stop()
		highLoad = t.C
	}

	d.logger.Info("simulation started",
		"interval", d.cfg.Interval.String(), "highLoad", d.cfg.HighLoadEnabled, "enabled", d.Enabled())

	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.stopped = true
			d.mu.Unlock()
			d.pending.Wait()
			d.logger.Info("simulation stopped")
			return nil
		case <-normal.C:
			if d.Enabled() {
				d.Tick(ctx, d.eventsPerTick())
			}
		case <-highLoad:
			if d.Enabled() {
				d.logger.Info("high load burst", "size", d.cfg.HighLoadBatchSize)
				d.Tick(ctx, d.cfg.HighLoadBatchSize)
			}
		}
	}
}

// Tick submits n simulated readings and logs the batch outcome once every
// element has resolved. After Run has stopped the outcome is left to the caller.
func (d *Driver) Tick(ctx context.Context, n int) *worker.BatchFuture {
	if n <= 0 || len(d.simulators) == 0 {
		return d.submitter.SubmitBatch(nil)
	}

	readings := make([]domain.Reading, 0, n)
	for i := 0; i < n; i++ {
		readings = append(readings, d.pick().Simulate())
	}

	batch := d.submitter.SubmitBatch(readings)
	if !d.track() {
		return batch
	}
	go func() {
		defer d.pending.Done()
		results, err := batch.Await(ctx)
		if err != nil {
			d.logger.Debug("batch await interrupted", logging.AttachError(err, "size", n)...)
			return
		}
		ok, failed := worker.Summary(results)
		critical := 0
		for _, r := range results {
			if r.Err == nil && r.Reading.Critical {
				critical++
			}
		}
		if failed > 0 {
			d.logger.Warn("batch processed with failures", "size", n, "ok", ok, "failed", failed, "critical", critical)
			return
		}
		d.logger.Debug("batch processed", "size", n, "critical", critical)
	}()
	return batch
}

func (d *Driver) track() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	d.pending.Add(1)
	return true
}

func (d *Driver) pick() domain.ReadingSimulator {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.simulators[d.rnd.Intn(len(d.simulators))]
}

func (d *Driver) eventsPerTick() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.MinEvents + d.rnd.Intn(d.cfg.MaxEvents-d.cfg.MinEvents+1)
}
