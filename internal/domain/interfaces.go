package domain

import (
	"context"
	"time"
)

// ReadingWriter persists readings produced by the pipeline.
type ReadingWriter interface {
	SaveReading(ctx context.Context, reading Reading) (Reading, error)
}

// ReadingReader exposes the reading queries used by the API layer.
type ReadingReader interface {
	FindByType(ctx context.Context, sensorType SensorType) ([]Reading, error)
	FindCritical(ctx context.Context) ([]Reading, error)
	// FindByTimeRange returns readings observed in the half-open interval [from, to).
	FindByTimeRange(ctx context.Context, from, to time.Time) ([]Reading, error)
	CountByType(ctx context.Context, sensorType SensorType) (int64, error)
	// CountAllByType reports every known type, zero when absent.
	CountAllByType(ctx context.Context) (map[SensorType]int64, error)
	// AverageProcessingTime reports ok=false when no reading of the type exists.
	AverageProcessingTime(ctx context.Context, sensorType SensorType) (avg float64, ok bool, err error)
}

// ReadingRepository aggregates the reading capabilities required by the service.
type ReadingRepository interface {
	ReadingWriter
	ReadingReader
}

// AlertRepository stores alerts. SaveAlert inserts when ID is zero and updates otherwise.
type AlertRepository interface {
	SaveAlert(ctx context.Context, alert Alert) (Alert, error)
	FindAlertByID(ctx context.Context, id int64) (Alert, error)
	FindUnresolvedAlerts(ctx context.Context) ([]Alert, error)
	// FindUnresolvedPrioritized orders by level descending, then newest first.
	FindUnresolvedPrioritized(ctx context.Context) ([]Alert, error)
	CountUnresolvedByLevel(ctx context.Context, level AlertLevel) (int64, error)
}

// Repository is the full persistence gateway.
type Repository interface {
	ReadingRepository
	AlertRepository
}

// Publisher delivers payloads to topic subscribers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// ReadingProcessor runs one reading through the pipeline.
type ReadingProcessor interface {
	Process(ctx context.Context, reading Reading) (Reading, error)
}

// ReadingSimulator produces synthetic readings.
type ReadingSimulator interface {
	Simulate() Reading
}
