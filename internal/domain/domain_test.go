package domain_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/domain"
)

func TestParseSensorType(t *testing.T) {
	got, err := domain.ParseSensorType(" motion ")
	require.NoError(t, err)
	assert.Equal(t, domain.SensorMotion, got)

	_, err = domain.ParseSensorType("smoke")
	assert.True(t, errors.Is(err, domain.ErrUnknownSensorType))
}

func TestSensorTypeTopicAndIndex(t *testing.T) {
	assert.Equal(t, "sensors/temperature", domain.SensorTemperature.Topic())
	assert.Equal(t, 2, domain.SensorAccess.Index())
	assert.Equal(t, -1, domain.SensorType("SMOKE").Index())
	assert.Equal(t, "Access control", domain.SensorAccess.Description())
}

func TestReadingValidate(t *testing.T) {
	valid := domain.Reading{Type: domain.SensorAccess, SourceID: "ACCESS-1", ObservedAt: time.Now()}
	require.NoError(t, valid.Validate())

	missing := valid
	missing.SourceID = ""
	assert.ErrorIs(t, missing.Validate(), domain.ErrInvalidReading)
}

func TestAlertResolveKeepsExistingAcknowledger(t *testing.T) {
	first := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	alert := domain.Alert{Level: domain.AlertHigh}

	require.True(t, alert.Acknowledge("alice", first))
	assert.False(t, alert.Acknowledge("bob", first.Add(time.Minute)))

	alert.Resolve("bob", first.Add(2*time.Minute))
	assert.True(t, alert.Resolved)
	assert.Equal(t, "alice", alert.AcknowledgedBy)
	assert.Equal(t, first, *alert.AcknowledgedAt)
}

func TestAlertResolveAcknowledgesWhenUnset(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	alert := domain.Alert{}

	alert.Resolve("ops", at)

	require.True(t, alert.Acknowledged())
	assert.Equal(t, "ops", alert.AcknowledgedBy)
}

func TestAlertLevelJSONUsesNames(t *testing.T) {
	payload, err := json.Marshal(map[domain.AlertLevel]int64{domain.AlertCritical: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"CRITICAL":2}`, string(payload))

	var level domain.AlertLevel
	require.NoError(t, json.Unmarshal([]byte(`"medium"`), &level))
	assert.Equal(t, domain.AlertMedium, level)
	assert.True(t, domain.AlertCritical > domain.AlertHigh)
}

func TestWorkerNameDefaultsToCaller(t *testing.T) {
	assert.Equal(t, "caller", domain.WorkerName(context.Background()))
	ctx := domain.WithWorkerName(context.Background(), "sensor-processor-3")
	assert.Equal(t, "sensor-processor-3", domain.WorkerName(ctx))
}
