package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"security-monitor-service/internal/domain"
)

const readingColumns = `id, sensor_type, source_id, location, value, unit, description, critical, observed_at, processed_at, processed_by, processing_ms`

const alertColumns = `id, level, title, message, related_type, related_source_id, location, created_at, acknowledged_at, acknowledged_by, resolved`

const (
	insertReading = `INSERT INTO sensor_readings (sensor_type, source_id, location, value, unit, description, critical, observed_at, processed_at, processed_by, processing_ms) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`

	selectReadingsByType  = `SELECT ` + readingColumns + ` FROM sensor_readings WHERE sensor_type = $1 ORDER BY observed_at, id`
	selectCriticalReading = `SELECT ` + readingColumns + ` FROM sensor_readings WHERE critical ORDER BY observed_at, id`
	selectReadingsInRange = `SELECT ` + readingColumns + ` FROM sensor_readings WHERE observed_at >= $1 AND observed_at < $2 ORDER BY observed_at, id`
	countReadingsByType   = `SELECT COUNT(*) FROM sensor_readings WHERE sensor_type = $1`
	countReadingsGrouped  = `SELECT sensor_type, COUNT(*) FROM sensor_readings GROUP BY sensor_type`
	avgProcessingByType   = `SELECT AVG(processing_ms) FROM sensor_readings WHERE sensor_type = $1`

	insertAlert = `INSERT INTO security_alerts (level, title, message, related_type, related_source_id, location, created_at, acknowledged_at, acknowledged_by, resolved) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	updateAlert = `UPDATE security_alerts SET level = $2, title = $3, message = $4, related_type = $5, related_source_id = $6, location = $7, created_at = $8, acknowledged_at = $9, acknowledged_by = $10, resolved = $11 WHERE id = $1`

	selectAlertByID             = `SELECT ` + alertColumns + ` FROM security_alerts WHERE id = $1`
	selectUnresolvedAlerts      = `SELECT ` + alertColumns + ` FROM security_alerts WHERE NOT resolved ORDER BY created_at, id`
	selectUnresolvedPrioritized = `SELECT ` + alertColumns + ` FROM security_alerts WHERE NOT resolved ORDER BY level DESC, created_at DESC, id DESC`
	countUnresolvedByLevel      = `SELECT COUNT(*) FROM security_alerts WHERE NOT resolved AND level = $1`
)

// Repository implements domain.Repository on top of database/sql.
type Repository struct {
	db        *sql.DB
	closeOnce sync.Once
}

// NewRepository wraps an open pool. Schema management is left to Migrate.
func NewRepository(db *sql.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("postgres repository requires db instance")
	}
	return &Repository{db: db}, nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.db.Close()
	})
	return err
}

func (r *Repository) SaveReading(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	err := r.db.QueryRowContext(ctx, insertReading,
		string(reading.Type),
		reading.SourceID,
		reading.Location,
		reading.Value,
		reading.Unit,
		reading.Description,
		reading.Critical,
		reading.ObservedAt.UTC(),
		reading.ProcessedAt.UTC(),
		reading.ProcessedBy,
		reading.ProcessingDurationMs,
	).Scan(&reading.ID)
	if err != nil {
		return reading, fmt.Errorf("postgres: save reading: %w", err)
	}
	return reading, nil
}

func (r *Repository) FindByType(ctx context.Context, sensorType domain.SensorType) ([]domain.Reading, error) {
	return r.queryReadings(ctx, selectReadingsByType, string(sensorType))
}

func (r *Repository) FindCritical(ctx context.Context) ([]domain.Reading, error) {
	return r.queryReadings(ctx, selectCriticalReading)
}

func (r *Repository) FindByTimeRange(ctx context.Context, from, to time.Time) ([]domain.Reading, error) {
	return r.queryReadings(ctx, selectReadingsInRange, from.UTC(), to.UTC())
}

func (r *Repository) CountByType(ctx context.Context, sensorType domain.SensorType) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countReadingsByType, string(sensorType)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count readings: %w", err)
	}
	return n, nil
}

func (r *Repository) CountAllByType(ctx context.Context) (map[domain.SensorType]int64, error) {
	rows, err := r.db.QueryContext(ctx, countReadingsGrouped)
	if err != nil {
		return nil, fmt.Errorf("postgres: count readings by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SensorType]int64, domain.SensorTypeCount)
	for _, t := range domain.SensorTypes() {
		counts[t] = 0
	}
	for rows.Next() {
		var (
			sensorType string
			n          int64
		)
		if err := rows.Scan(&sensorType, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan reading count: %w", err)
		}
		counts[domain.SensorType(sensorType)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate reading counts: %w", err)
	}
	return counts, nil
}

func (r *Repository) AverageProcessingTime(ctx context.Context, sensorType domain.SensorType) (float64, bool, error) {
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, avgProcessingByType, string(sensorType)).Scan(&avg); err != nil {
		return 0, false, fmt.Errorf("postgres: average processing time: %w", err)
	}
	return avg.Float64, avg.Valid, nil
}

func (r *Repository) queryReadings(ctx context.Context, query string, args ...any) ([]domain.Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query readings: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Reading, 0)
	for rows.Next() {
		var (
			reading    domain.Reading
			sensorType string
		)
		if err := rows.Scan(
			&reading.ID,
			&sensorType,
			&reading.SourceID,
			&reading.Location,
			&reading.Value,
			&reading.Unit,
			&reading.Description,
			&reading.Critical,
			&reading.ObservedAt,
			&reading.ProcessedAt,
			&reading.ProcessedBy,
			&reading.ProcessingDurationMs,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan reading: %w", err)
		}
		reading.Type = domain.SensorType(sensorType)
		results = append(results, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate readings: %w", err)
	}
	return results, nil
}

// SaveAlert inserts when alert.ID is zero and updates the row otherwise.
func (r *Repository) SaveAlert(ctx context.Context, alert domain.Alert) (domain.Alert, error) {
	ackAt, ackBy := nullableAck(alert)

	if alert.ID == 0 {
		err := r.db.QueryRowContext(ctx, insertAlert,
			int16(alert.Level),
			alert.Title,
			alert.Message,
			string(alert.RelatedType),
			alert.RelatedSourceID,
			alert.Location,
			alert.CreatedAt.UTC(),
			ackAt,
			ackBy,
			alert.Resolved,
		).Scan(&alert.ID)
		if err != nil {
			return alert, fmt.Errorf("postgres: insert alert: %w", err)
		}
		return alert, nil
	}

	res, err := r.db.ExecContext(ctx, updateAlert,
		alert.ID,
		int16(alert.Level),
		alert.Title,
		alert.Message,
		string(alert.RelatedType),
		alert.RelatedSourceID,
		alert.Location,
		alert.CreatedAt.UTC(),
		ackAt,
		ackBy,
		alert.Resolved,
	)
	if err != nil {
		return alert, fmt.Errorf("postgres: update alert %d: %w", alert.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return alert, fmt.Errorf("postgres: update alert %d: %w", alert.ID, err)
	}
	if affected == 0 {
		return alert, fmt.Errorf("alert %d: %w", alert.ID, domain.ErrNotFound)
	}
	return alert, nil
}

func (r *Repository) FindAlertByID(ctx context.Context, id int64) (domain.Alert, error) {
	alerts, err := r.queryAlerts(ctx, selectAlertByID, id)
	if err != nil {
		return domain.Alert{}, err
	}
	if len(alerts) == 0 {
		return domain.Alert{}, fmt.Errorf("alert %d: %w", id, domain.ErrNotFound)
	}
	return alerts[0], nil
}

func (r *Repository) FindUnresolvedAlerts(ctx context.Context) ([]domain.Alert, error) {
	return r.queryAlerts(ctx, selectUnresolvedAlerts)
}

func (r *Repository) FindUnresolvedPrioritized(ctx context.Context) ([]domain.Alert, error) {
	return r.queryAlerts(ctx, selectUnresolvedPrioritized)
}

func (r *Repository) CountUnresolvedByLevel(ctx context.Context, level domain.AlertLevel) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, countUnresolvedByLevel, int16(level)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count unresolved alerts: %w", err)
	}
	return n, nil
}

func (r *Repository) queryAlerts(ctx context.Context, query string, args ...any) ([]domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query alerts: %w", err)
	}
	defer rows.Close()

	results := make([]domain.Alert, 0)
	for rows.Next() {
		var (
			alert       domain.Alert
			level       int16
			relatedType string
			ackAt       sql.NullTime
			ackBy       sql.NullString
		)
		if err := rows.Scan(
			&alert.ID,
			&level,
			&alert.Title,
			&alert.Message,
			&relatedType,
			&alert.RelatedSourceID,
			&alert.Location,
			&alert.CreatedAt,
			&ackAt,
			&ackBy,
			&alert.Resolved,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		alert.Level = domain.AlertLevel(level)
		alert.RelatedType = domain.SensorType(relatedType)
		if ackAt.Valid {
			at := ackAt.Time
			alert.AcknowledgedAt = &at
		}
		alert.AcknowledgedBy = ackBy.String
		results = append(results, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate alerts: %w", err)
	}
	return results, nil
}

func nullableAck(alert domain.Alert) (sql.NullTime, sql.NullString) {
	if alert.AcknowledgedAt == nil {
		return sql.NullTime{}, sql.NullString{}
	}
	return sql.NullTime{Time: alert.AcknowledgedAt.UTC(), Valid: true},
		sql.NullString{String: alert.AcknowledgedBy, Valid: true}
}

var _ domain.Repository = (*Repository)(nil)
