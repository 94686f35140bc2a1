package stats

import (
	"context"
	"time"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

const DefaultBroadcastInterval = 2 * time.Second

// Broadcaster publishes diagnostics to the stats topic on a fixed interval
// and whenever Notify was called since the last snapshot.
type Broadcaster struct {
	reporter  *Reporter
	publisher domain.Publisher
	interval  time.Duration
	logger    *logging.Logger
	dirty     chan struct{}
}

func NewBroadcaster(reporter *Reporter, publisher domain.Publisher, interval time.Duration, logger *logging.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &Broadcaster{
		reporter:  reporter,
		publisher: publisher,
		interval:  interval,
		logger:    logger.With("component", "stats-broadcaster"),
		dirty:     make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("stats broadcaster stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			b.broadcast(ctx)
		case <-b.dirty:
			b.broadcast(ctx)
		}
	}
}

// Notify marks the stats as changed without blocking. Calls made before the
// next snapshot collapse into one.
func (b *Broadcaster) Notify() {
	select {
	case b.dirty <- struct{}{}:
	default:
	}
}

// broadcast publishes a single snapshot. Failures are logged.
func (b *Broadcaster) broadcast(ctx context.Context) {
	diag, err := b.reporter.Diagnostics(ctx)
	if err != nil {
		b.logger.Warn("build diagnostics", logging.AttachError(err)...)
		return
	}
	if err := b.publisher.Publish(ctx, domain.TopicStats, diag); err != nil {
		b.logger.Warn("publish diagnostics", logging.AttachError(err)...)
	}
}
