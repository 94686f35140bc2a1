package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"security-monitor-service/internal/domain"
)

// Repository stores readings and alerts in memory and satisfies domain.Repository.
type Repository struct {
	mu            sync.RWMutex
	readings      []domain.Reading
	alerts        map[int64]domain.Alert
	nextReadingID int64
	nextAlertID   int64
}

// New creates an empty in-memory repository instance.
func New() *Repository {
	return &Repository{alerts: make(map[int64]domain.Alert)}
}

// Seed replaces the stored readings with the provided sample data.
func (r *Repository) Seed(readings []domain.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.readings = make([]domain.Reading, 0, len(readings))
	r.nextReadingID = 0
	for _, reading := range readings {
		r.nextReadingID++
		reading.ID = r.nextReadingID
		r.readings = append(r.readings, reading)
	}
}

func (r *Repository) SaveReading(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	if err := ctx.Err(); err != nil {
		return reading, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextReadingID++
	reading.ID = r.nextReadingID
	r.readings = append(r.readings, reading)
	return reading, nil
}

func (r *Repository) FindByType(_ context.Context, sensorType domain.SensorType) ([]domain.Reading, error) {
	return r.filterReadings(func(reading domain.Reading) bool { return reading.Type == sensorType }), nil
}

func (r *Repository) FindCritical(_ context.Context) ([]domain.Reading, error) {
	return r.filterReadings(func(reading domain.Reading) bool { return reading.Critical }), nil
}

// FindByTimeRange returns readings observed in [from, to).
func (r *Repository) FindByTimeRange(_ context.Context, from, to time.Time) ([]domain.Reading, error) {
	return r.filterReadings(func(reading domain.Reading) bool {
		return !reading.ObservedAt.Before(from) && reading.ObservedAt.Before(to)
	}), nil
}

func (r *Repository) CountByType(_ context.Context, sensorType domain.SensorType) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for i := range r.readings {
		if r.readings[i].Type == sensorType {
			n++
		}
	}
	return n, nil
}

func (r *Repository) CountAllByType(_ context.Context) (map[domain.SensorType]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.SensorType]int64, domain.SensorTypeCount)
	for _, t := range domain.SensorTypes() {
		counts[t] = 0
	}
	for i := range r.readings {
		counts[r.readings[i].Type]++
	}
	return counts, nil
}

func (r *Repository) AverageProcessingTime(_ context.Context, sensorType domain.SensorType) (float64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sum, n int64
	for i := range r.readings {
		if r.readings[i].Type == sensorType {
			sum += r.readings[i].ProcessingDurationMs
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return float64(sum) / float64(n), true, nil
}

func (r *Repository) filterReadings(keep func(domain.Reading) bool) []domain.Reading {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Reading, 0)
	for i := range r.readings {
		if keep(r.readings[i]) {
			out = append(out, r.readings[i])
		}
	}
	return out
}

// SaveAlert inserts when alert.ID is zero, otherwise replaces the stored alert.
func (r *Repository) SaveAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	if err := ctx.Err(); err != nil {
		return alert, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if alert.ID == 0 {
		r.nextAlertID++
		alert.ID = r.nextAlertID
	} else if _, ok := r.alerts[alert.ID]; !ok {
		return alert, fmt.Errorf("alert %d: %w", alert.ID, domain.ErrNotFound)
	}
	r.alerts[alert.ID] = cloneAlert(alert)
	return cloneAlert(alert), nil
}

func (r *Repository) FindAlertByID(_ context.Context, id int64) (domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, ok := r.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("alert %d: %w", id, domain.ErrNotFound)
	}
	return cloneAlert(alert), nil
}

// FindUnresolvedAlerts returns unresolved alerts in creation order.
func (r *Repository) FindUnresolvedAlerts(_ context.Context) ([]domain.Alert, error) {
	alerts := r.unresolved()
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts, nil
}

func (r *Repository) FindUnresolvedPrioritized(_ context.Context) ([]domain.Alert, error) {
	alerts := r.unresolved()
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Level != alerts[j].Level {
			return alerts[i].Level > alerts[j].Level
		}
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
		}
		return alerts[i].ID > alerts[j].ID
	})
	return alerts, nil
}

func (r *Repository) CountUnresolvedByLevel(_ context.Context, level domain.AlertLevel) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, alert := range r.alerts {
		if !alert.Resolved && alert.Level == level {
			n++
		}
	}
	return n, nil
}

func (r *Repository) unresolved() []domain.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Alert, 0, len(r.alerts))
	for _, alert := range r.alerts {
		if !alert.Resolved {
			out = append(out, cloneAlert(alert))
		}
	}
	return out
}

func cloneAlert(alert domain.Alert) domain.Alert {
	if alert.AcknowledgedAt != nil {
		at := *alert.AcknowledgedAt
		alert.AcknowledgedAt = &at
	}
	return alert
}

var _ domain.Repository = (*Repository)(nil)
