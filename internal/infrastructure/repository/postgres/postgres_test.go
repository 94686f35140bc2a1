package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/domain"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo, err := NewRepository(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		require.NoError(t, repo.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})
	return repo, mock
}

func readingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "sensor_type", "source_id", "location", "value", "unit", "description",
		"critical", "observed_at", "processed_at", "processed_by", "processing_ms",
	})
}

func alertRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "level", "title", "message", "related_type", "related_source_id", "location",
		"created_at", "acknowledged_at", "acknowledged_by", "resolved",
	})
}

func TestSaveReadingReturnsGeneratedID(t *testing.T) {
	repo, mock := newMockRepo(t)
	observed := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(insertReading)).
		WithArgs("ACCESS", "ACCESS-1a2b3c4d", "Armory", 4.0, "attempts", "denied", true,
			observed, observed.Add(120*time.Millisecond), "sensor-processor-1", int64(120)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(17))

	saved, err := repo.SaveReading(context.Background(), domain.Reading{
		Type:                 domain.SensorAccess,
		SourceID:             "ACCESS-1a2b3c4d",
		Location:             "Armory",
		Value:                4,
		Unit:                 "attempts",
		Description:          "denied",
		Critical:             true,
		ObservedAt:           observed,
		ProcessedAt:          observed.Add(120 * time.Millisecond),
		ProcessedBy:          "sensor-processor-1",
		ProcessingDurationMs: 120,
	})

	require.NoError(t, err)
	assert.EqualValues(t, 17, saved.ID)
}

func TestFindByTypeScansRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	observed := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectReadingsByType)).
		WithArgs("MOTION").
		WillReturnRows(readingRows().
			AddRow(1, "MOTION", "MOTION-1", "Vault", 9.0, "detections/min", "", true, observed, observed, "w1", 0).
			AddRow(2, "MOTION", "MOTION-2", "Lab", 2.0, "detections/min", "", false, observed, observed, "w2", 3))

	readings, err := repo.FindByType(context.Background(), domain.SensorMotion)

	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, domain.SensorMotion, readings[0].Type)
	assert.True(t, readings[0].Critical)
	assert.EqualValues(t, 3, readings[1].ProcessingDurationMs)
}

func TestFindByTimeRangeUsesHalfOpenInterval(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	assert.Contains(t, selectReadingsInRange, "observed_at >= $1 AND observed_at < $2")
	mock.ExpectQuery(regexp.QuoteMeta(selectReadingsInRange)).
		WithArgs(from, to).
		WillReturnRows(readingRows())

	readings, err := repo.FindByTimeRange(context.Background(), from, to)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestAverageProcessingTimeWithoutRows(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(avgProcessingByType)).
		WithArgs("TEMPERATURE").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))
	mock.ExpectQuery(regexp.QuoteMeta(avgProcessingByType)).
		WithArgs("MOTION").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(87.5))

	_, ok, err := repo.AverageProcessingTime(context.Background(), domain.SensorTemperature)
	require.NoError(t, err)
	assert.False(t, ok)

	avg, ok, err := repo.AverageProcessingTime(context.Background(), domain.SensorMotion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 87.5, avg, 0.0001)
}

func TestCountByType(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(countReadingsByType)).
		WithArgs("ACCESS").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := repo.CountByType(context.Background(), domain.SensorAccess)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
}

func TestCountAllByTypeFillsMissingTypes(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(countReadingsGrouped)).
		WillReturnRows(sqlmock.NewRows([]string{"sensor_type", "count"}).
			AddRow("MOTION", 4).
			AddRow("ACCESS", 2))

	counts, err := repo.CountAllByType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[domain.SensorType]int64{
		domain.SensorMotion:      4,
		domain.SensorTemperature: 0,
		domain.SensorAccess:      2,
	}, counts)
}

func TestSaveAlertInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(insertAlert)).
		WithArgs(int64(domain.AlertCritical), "CRITICAL TEMPERATURE", "msg", "TEMPERATURE", "TEMP-1",
			"Server Room", created, nil, nil, false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	alert, err := repo.SaveAlert(context.Background(), domain.Alert{
		Level:           domain.AlertCritical,
		Title:           "CRITICAL TEMPERATURE",
		Message:         "msg",
		RelatedType:     domain.SensorTemperature,
		RelatedSourceID: "TEMP-1",
		Location:        "Server Room",
		CreatedAt:       created,
	})

	require.NoError(t, err)
	assert.EqualValues(t, 3, alert.ID)
}

func TestSaveAlertUpdateMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	ackAt := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(updateAlert)).
		WithArgs(int64(42), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), ackAt, "ops", true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.SaveAlert(context.Background(), domain.Alert{
		ID:             42,
		AcknowledgedAt: &ackAt,
		AcknowledgedBy: "ops",
		Resolved:       true,
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestFindAlertByIDMapsNullableColumns(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectAlertByID)).
		WithArgs(int64(1)).
		WillReturnRows(alertRows().
			AddRow(1, 2, "INTRUSION DETECTED", "m", "ACCESS", "ACCESS-1", "Armory", created, nil, nil, false))
	mock.ExpectQuery(regexp.QuoteMeta(selectAlertByID)).
		WithArgs(int64(2)).
		WillReturnRows(alertRows())

	alert, err := repo.FindAlertByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.AlertHigh, alert.Level)
	assert.Equal(t, domain.SensorAccess, alert.RelatedType)
	assert.Nil(t, alert.AcknowledgedAt)
	assert.Empty(t, alert.AcknowledgedBy)

	_, err = repo.FindAlertByID(context.Background(), 2)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFindUnresolvedPrioritized(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	ackAt := created.Add(time.Minute)

	assert.Contains(t, selectUnresolvedPrioritized, "ORDER BY level DESC, created_at DESC")
	mock.ExpectQuery(regexp.QuoteMeta(selectUnresolvedPrioritized)).
		WillReturnRows(alertRows().
			AddRow(5, 3, "CRITICAL TEMPERATURE", "m", "TEMPERATURE", "TEMP-1", "Reactor", created, ackAt, "ops", false).
			AddRow(4, 1, "SUSPICIOUS MOTION", "m", "MOTION", "MOTION-1", "Vault", created, nil, nil, false))

	alerts, err := repo.FindUnresolvedPrioritized(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, domain.AlertCritical, alerts[0].Level)
	require.NotNil(t, alerts[0].AcknowledgedAt)
	assert.Equal(t, "ops", alerts[0].AcknowledgedBy)
}

func TestCountUnresolvedByLevel(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(countUnresolvedByLevel)).
		WithArgs(int64(domain.AlertMedium)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := repo.CountUnresolvedByLevel(context.Background(), domain.AlertMedium)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
}

func TestQueryErrorsAreWrapped(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectCriticalReading)).WillReturnError(sql.ErrConnDone)

	_, err := repo.FindCritical(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestMigrateAppliesPendingMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	names, err := migrationNames()
	require.NoError(t, err)
	require.Equal(t, []string{"migrations/0001_sensor_readings.sql", "migrations/0002_security_alerts.sql"}, names)

	mock.ExpectExec(regexp.QuoteMeta(createMigrationsTable)).WillReturnResult(sqlmock.NewResult(0, 0))

	mock.ExpectQuery(regexp.QuoteMeta(migrationApplied)).WithArgs(names[0]).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery(regexp.QuoteMeta(migrationApplied)).WithArgs(names[1]).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS security_alerts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(recordMigration)).WithArgs(names[1]).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(createMigrationsTable)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(migrationApplied)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sensor_readings").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Zero(t, applied)
	assert.Contains(t, err.Error(), "0001_sensor_readings.sql")
	require.NoError(t, mock.ExpectationsWereMet())
}
