package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"security-monitor-service/internal/application/notification"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/infrastructure/metrics"
	"security-monitor-service/internal/logging"
)

// Notifier delivers a persisted alert.
type Notifier interface {
	Dispatch(ctx context.Context, alert domain.Alert) notification.Report
}

// Decision is the outcome of OnCriticalReading. A zero Decision means the
// reading was not critical.
type Decision struct {
	Alert             domain.Alert
	Created           bool
	Suppressed        bool
	CooldownRemaining time.Duration
	Notification      notification.Report
}

// Engine turns critical readings into deduplicated alerts and manages their lifecycle.
type Engine struct {
	repo     domain.AlertRepository
	notifier Notifier
	ledger   *Ledger
	now      func() time.Time
	logger   *logging.Logger

	// serialises acknowledge and resolve
	mu sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(repo domain.AlertRepository, notifier Notifier, cooldown time.Duration, logger *logging.Logger, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		notifier: notifier,
		ledger:   NewLedger(cooldown),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With("component", "alerts"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger exposes the cooldown state.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// OnCriticalReading raises an alert for a critical reading unless its
// type@location key is still cooling down.
func (e *Engine) OnCriticalReading(ctx context.Context, reading domain.Reading) (Decision, error) {
	if !reading.Critical {
		return Decision{}, nil
	}

	key := Key(reading.Type, reading.Location)
	now := e.now()
	claim, remaining, ok := e.ledger.TryAcquire(key, now)
	if !ok {
		metrics.RecordAlertSuppressed(string(reading.Type))
		e.logger.Info("alert suppressed by cooldown", "key", key, "remainingMs", remaining.Milliseconds())
		return Decision{Suppressed: true, CooldownRemaining: remaining}, nil
	}

	alert := domain.Alert{
		Level:           LevelFor(reading),
		Title:           TitleFor(reading.Type),
		Message:         messageFor(reading),
		RelatedType:     reading.Type,
		RelatedSourceID: reading.SourceID,
		Location:        reading.Location,
		CreatedAt:       now,
	}

	saved, err := e.repo.SaveAlert(ctx, alert)
	if err != nil {
		e.ledger.Release(claim)
		return Decision{}, fmt.Errorf("persist alert for %s: %w", key, err)
	}
	metrics.RecordAlertCreated(saved.Level.String())
	e.logger.Warn("security alert created", "id", saved.ID, "level", saved.Level.String(), "key", key)

	decision := Decision{Alert: saved, Created: true}
	if e.notifier != nil {
		decision.Notification = e.notifier.Dispatch(ctx, saved)
	}
	return decision, nil
}

// LevelFor maps a critical reading to its alert severity.
func LevelFor(reading domain.Reading) domain.AlertLevel {
	switch reading.Type {
	case domain.SensorAccess:
		if reading.Value >= 5 {
			return domain.AlertCritical
		}
		return domain.AlertHigh
	case domain.SensorTemperature:
		if reading.Value > 50 || reading.Value < 10 {
			return domain.AlertCritical
		}
		return domain.AlertMedium
	case domain.SensorMotion:
		if reading.Value >= 10 {
			return domain.AlertHigh
		}
		return domain.AlertMedium
	default:
		return domain.AlertLow
	}
}

func TitleFor(sensorType domain.SensorType) string {
	switch sensorType {
	case domain.SensorAccess:
		return "INTRUSION DETECTED"
	case domain.SensorTemperature:
		return "CRITICAL TEMPERATURE"
	case domain.SensorMotion:
		return "SUSPICIOUS MOTION"
	default:
		return "SECURITY EVENT"
	}
}

func messageFor(r domain.Reading) string {
	return fmt.Sprintf("Alert of %s detected at %s. Value: %.2f %s. Sensor ID: %s. Timestamp: %s",
		r.Type.Description(), r.Location, r.Value, r.Unit, r.SourceID, r.ObservedAt.UTC().Format(time.RFC3339))
}

// ListActive returns unresolved alerts.
func (e *Engine) ListActive(ctx context.Context) ([]domain.Alert, error) {
	return e.repo.FindUnresolvedAlerts(ctx)
}

// ListActivePrioritized returns unresolved alerts, most severe and newest first.
func (e *Engine) ListActivePrioritized(ctx context.Context) ([]domain.Alert, error) {
	return e.repo.FindUnresolvedPrioritized(ctx)
}

// Acknowledge records actor on the alert unless it is already acknowledged.
func (e *Engine) Acknowledge(ctx context.Context, id int64, actor string) (domain.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, err := e.repo.FindAlertByID(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	if !alert.Acknowledge(actor, e.now()) {
		return alert, nil
	}
	saved, err := e.repo.SaveAlert(ctx, alert)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("acknowledge alert %d: %w", id, err)
	}
	e.logger.Info("alert acknowledged", "id", id, "actor", actor)
	return saved, nil
}

// Resolve closes the alert, acknowledging it first when needed.
func (e *Engine) Resolve(ctx context.Context, id int64, actor string) (domain.Alert, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	alert, err := e.repo.FindAlertByID(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	alert.Resolve(actor, e.now())
	saved, err := e.repo.SaveAlert(ctx, alert)
	if err != nil {
		return domain.Alert{}, fmt.Errorf("resolve alert %d: %w", id, err)
	}
	e.logger.Info("alert resolved", "id", id, "actor", actor)
	return saved, nil
}

