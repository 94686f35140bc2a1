package notification

import (
	"context"
	"fmt"
	"time"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

const DefaultStepTimeout = 10 * time.Second

// StepResult records one delivery attempt.
type StepResult struct {
	Name    string
	Skipped bool
	Err     error
}

// Report lists what Dispatch attempted for one alert.
type Report struct {
	AlertID int64
	Steps   []StepResult
}

// Failed returns the names of steps that errored.
func (r Report) Failed() []string {
	var names []string
	for _, s := range r.Steps {
		if s.Err != nil {
			names = append(names, s.Name)
		}
	}
	return names
}

// Attempted reports whether the named step ran.
func (r Report) Attempted(name string) bool {
	for _, s := range r.Steps {
		if s.Name == name {
			return !s.Skipped
		}
	}
	return false
}

// Fanout publishes alerts to subscribers and hands them to delivery channels.
// Failures never propagate to the caller.
type Fanout struct {
	publisher   domain.Publisher
	channels    []Channel
	stepTimeout time.Duration
	logger      *logging.Logger
}

func NewFanout(publisher domain.Publisher, logger *logging.Logger, channels ...Channel) *Fanout {
	return &Fanout{
		publisher:   publisher,
		channels:    channels,
		stepTimeout: DefaultStepTimeout,
		logger:      logger.With("component", "fanout"),
	}
}

// WithStepTimeout bounds every individual step.
func (f *Fanout) WithStepTimeout(d time.Duration) *Fanout {
	if d > 0 {
		f.stepTimeout = d
	}
	return f
}

// Dispatch publishes to the alerts topic and the per-level topic, then runs
// each channel that accepts the alert level.
func (f *Fanout) Dispatch(ctx context.Context, alert domain.Alert) Report {
	report := Report{AlertID: alert.ID}
	msg := domain.NewAlertMessage(alert)

	for _, topic := range []string{domain.TopicAlerts, alert.Level.Topic()} {
		report.Steps = append(report.Steps, f.step(ctx, "publish:"+topic, func(stepCtx context.Context) error {
			if f.publisher == nil {
				return nil
			}
			return f.publisher.Publish(stepCtx, topic, msg)
		}))
	}

	for _, ch := range f.channels {
		if !ch.Accepts(alert.Level) {
			report.Steps = append(report.Steps, StepResult{Name: ch.Name(), Skipped: true})
			continue
		}
		report.Steps = append(report.Steps, f.step(ctx, ch.Name(), func(stepCtx context.Context) error {
			return ch.Send(stepCtx, alert)
		}))
	}

	if failed := report.Failed(); len(failed) > 0 {
		f.logger.Warn("alert notification incomplete", "alertId", alert.ID, "failed", failed)
	}
	return report
}

func (f *Fanout) step(ctx context.Context, name string, fn func(context.Context) error) (res StepResult) {
	res.Name = name
	stepCtx, cancel := context.WithTimeout(ctx, f.stepTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("%s: panic: %v", name, r)
		}
		if res.Err != nil {
			metrics.RecordNotificationFailure(name)
			f.logger.Error("notification step failed", logging.AttachError(res.Err, "step", name)...)
		}
	}()

	res.Err = fn(stepCtx)
	return res
}
