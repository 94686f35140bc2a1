package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

// Overflow selects what happens when the queue is full and the pool is at its maximum size.
type Overflow string

const (
	OverflowReject     Overflow = "reject"
	OverflowCallerRuns Overflow = "caller-runs"
)

const (
	DefaultCoreWorkers     = 20
	DefaultMaxWorkers      = 50
	DefaultQueueCapacity   = 200
	DefaultNamePrefix      = "sensor-processor-"
	DefaultKeepAlive       = 60 * time.Second
	DefaultShutdownTimeout = 60 * time.Second
	DefaultCancelGrace     = 5 * time.Second
)

// Config sizes the dispatcher.
type Config struct {
	CoreWorkers     int
	MaxWorkers      int
	QueueCapacity   int
	NamePrefix      string
	KeepAlive       time.Duration
	Overflow        Overflow
	ShutdownTimeout time.Duration
	// CancelGrace bounds the wait for workers after the pool context is cancelled.
	CancelGrace time.Duration
}

func (c Config) normalize() Config {
	if c.CoreWorkers < 0 {
		c.CoreWorkers = 0
	}
	if c.MaxWorkers < c.CoreWorkers {
		c.MaxWorkers = c.CoreWorkers
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 1
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1
	}
	if c.NamePrefix == "" {
		c.NamePrefix = DefaultNamePrefix
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	if c.Overflow != OverflowCallerRuns {
		c.Overflow = OverflowReject
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = DefaultCancelGrace
	}
	return c
}

// ProcessorFunc adapts a function to domain.ReadingProcessor.
type ProcessorFunc func(ctx context.Context, reading domain.Reading) (domain.Reading, error)

func (f ProcessorFunc) Process(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	return f(ctx, reading)
}

type task struct {
	reading domain.Reading
	future  *Future
}

// Dispatcher runs readings through a handler on a bounded, elastic worker pool.
type Dispatcher struct {
	cfg     Config
	handler domain.ReadingProcessor
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards closed and the queue close; submitters hold it shared.
	mu     sync.RWMutex
	closed bool
	queue  chan *task

	wg       sync.WaitGroup
	size     atomic.Int32
	active   atomic.Int32
	nextName atomic.Int64
	dropped  atomic.Int64
	inflight sync.Map // *task -> struct{}

	shutdownOnce sync.Once
	shutdownN    int
}

// New starts the core workers immediately.
func New(cfg Config, handler domain.ReadingProcessor, logger *logging.Logger) *Dispatcher {
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "dispatcher"),
		ctx:     ctx,
		cancel:  cancel,
		queue:   make(chan *task, cfg.QueueCapacity),
	}

	for i := 0; i < cfg.CoreWorkers; i++ {
		d.size.Add(1)
		d.wg.Add(1)
		go d.workerLoop(d.workerName(), nil, false)
	}
	d.publishOccupancy()
	d.logger.Info("dispatcher started",
		"core", cfg.CoreWorkers, "max", cfg.MaxWorkers, "queue", cfg.QueueCapacity, "overflow", string(cfg.Overflow))
	return d
}

// Submit hands one reading to the pool. With the reject policy a saturated
// pool returns domain.ErrQueueFull; with caller-runs the reading is processed
// before Submit returns.
func (d *Dispatcher) Submit(reading domain.Reading) (*Future, error) {
	t := &task{reading: reading, future: newFuture()}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, domain.ErrDispatcherClosed
	}
	select {
	case d.queue <- t:
		if d.size.Load() == 0 {
			d.trySpawn(nil)
		}
		d.mu.RUnlock()
		d.publishOccupancy()
		return t.future, nil
	default:
	}
	spawned := d.trySpawn(t)
	d.mu.RUnlock()
	if spawned {
		return t.future, nil
	}

	if d.cfg.Overflow == OverflowCallerRuns {
		metrics.DispatcherCallerRunsTotal.Inc()
		reading, err := d.process(d.ctx, t.reading)
		t.future.resolve(Result{Reading: reading, Err: err})
		return t.future, nil
	}

	metrics.DispatcherRejectedTotal.Inc()
	d.logger.Warn("reading rejected", "sourceId", reading.SourceID, "type", string(reading.Type))
	return nil, fmt.Errorf("submit reading %s: %w", reading.SourceID, domain.ErrQueueFull)
}

// SubmitBatch submits every reading. A rejected element resolves with its
// error without affecting the others.
func (d *Dispatcher) SubmitBatch(readings []domain.Reading) *BatchFuture {
	batch := &BatchFuture{futures: make([]*Future, 0, len(readings))}
	for _, reading := range readings {
		f, err := d.Submit(reading)
		if err != nil {
			f = resolvedFuture(reading, err)
		}
		batch.futures = append(batch.futures, f)
	}
	return batch
}

// Occupancy reports the current pool state.
func (d *Dispatcher) Occupancy() domain.PoolOccupancy {
	return domain.PoolOccupancy{
		Active:        int(d.active.Load()),
		PoolSize:      int(d.size.Load()),
		CoreSize:      d.cfg.CoreWorkers,
		MaxSize:       d.cfg.MaxWorkers,
		Queued:        len(d.queue),
		QueueCapacity: d.cfg.QueueCapacity,
	}
}

// Shutdown stops accepting work and waits up to ShutdownTimeout for queued
// and in-flight readings. Past the deadline the pool context is cancelled and
// readings that never started fail with domain.ErrCancelled. Workers still
// busy after CancelGrace are abandoned and their readings fail the same way.
// It returns how many readings were dropped. Later calls return the same count.
func (d *Dispatcher) Shutdown() int {
	d.shutdownOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		if !waitTimeout(&d.wg, d.cfg.ShutdownTimeout) {
			d.logger.Warn("shutdown timeout reached, cancelling pending readings",
				"timeout", d.cfg.ShutdownTimeout.String(), "queued", len(d.queue))
			d.cancel()
			if !waitTimeout(&d.wg, d.cfg.CancelGrace) {
				abandoned := d.abandonInFlight()
				d.logger.Warn("workers ignored cancellation, abandoning in-flight readings",
					"grace", d.cfg.CancelGrace.String(), "abandoned", abandoned)
			}
		}
		d.cancel()

		for t := range d.queue {
			d.drop(t)
		}
		d.publishOccupancy()

		d.shutdownN = int(d.dropped.Load())
		d.logger.Info("dispatcher stopped", "dropped", d.shutdownN)
	})
	return d.shutdownN
}

func (d *Dispatcher) trySpawn(first *task) bool {
	for {
		current := d.size.Load()
		if int(current) >= d.cfg.MaxWorkers {
			return false
		}
		if d.size.CompareAndSwap(current, current+1) {
			d.wg.Add(1)
			go d.workerLoop(d.workerName(), first, true)
			return true
		}
	}
}

func (d *Dispatcher) workerLoop(name string, first *task, elastic bool) {
	defer func() {
		d.size.Add(-1)
		d.publishOccupancy()
		d.wg.Done()
	}()

	if first != nil {
		d.run(name, first)
	}

	var idle <-chan time.Time
	var timer *time.Timer
	if elastic {
		timer = time.NewTimer(d.cfg.KeepAlive)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case t, ok := <-d.queue:
			if !ok {
				return
			}
			d.run(name, t)
			if timer != nil {
				timer.Reset(d.cfg.KeepAlive)
			}
		case <-idle:
			d.logger.Debug("idle worker retired", "worker", name)
			return
		case <-d.ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) run(name string, t *task) {
	if d.ctx.Err() != nil {
		d.drop(t)
		return
	}

	d.active.Add(1)
	d.publishOccupancy()
	defer func() {
		d.active.Add(-1)
		d.publishOccupancy()
	}()

	d.inflight.Store(t, struct{}{})
	defer d.inflight.Delete(t)

	reading, err := d.process(domain.WithWorkerName(d.ctx, name), t.reading)
	t.future.resolve(Result{Reading: reading, Err: err})
}

func (d *Dispatcher) abandonInFlight() int {
	n := 0
	d.inflight.Range(func(key, _ any) bool {
		if d.drop(key.(*task)) {
			n++
		}
		return true
	})
	return n
}

func (d *Dispatcher) process(ctx context.Context, reading domain.Reading) (out domain.Reading, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatcherPanicsTotal.Inc()
			d.logger.Error("handler panic recovered", "sourceId", reading.SourceID, "panic", fmt.Sprint(r))
			out, err = reading, fmt.Errorf("process reading %s: panic: %v", reading.SourceID, r)
		}
	}()
	return d.handler.Process(ctx, reading)
}

// drop fails t with domain.ErrCancelled and counts it, unless it already resolved.
func (d *Dispatcher) drop(t *task) bool {
	resolved := t.future.resolve(Result{
		Reading: t.reading,
		Err:     fmt.Errorf("reading %s: %w", t.reading.SourceID, domain.ErrCancelled),
	})
	if resolved {
		d.dropped.Add(1)
	}
	return resolved
}

func (d *Dispatcher) workerName() string {
	return d.cfg.NamePrefix + strconv.FormatInt(d.nextName.Add(1), 10)
}

func (d *Dispatcher) publishOccupancy() {
	metrics.SetPoolOccupancy(int(d.active.Load()), int(d.size.Load()), len(d.queue))
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
