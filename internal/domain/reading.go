package domain

import (
	"fmt"
	"strings"
	"time"
)

// SensorType identifies the family of sensor that produced a reading.
type SensorType string

const (
	SensorMotion      SensorType = "MOTION"
	SensorTemperature SensorType = "TEMPERATURE"
	SensorAccess      SensorType = "ACCESS"
)

var sensorTypes = [...]SensorType{SensorMotion, SensorTemperature, SensorAccess}

// SensorTypes returns every supported sensor type in a stable order.
func SensorTypes() []SensorType {
	out := make([]SensorType, len(sensorTypes))
	copy(out, sensorTypes[:])
	return out
}

// SensorTypeCount is the number of supported sensor types.
const SensorTypeCount = len(sensorTypes)

// Index returns the position of the type in SensorTypes, or -1 when unknown.
func (t SensorType) Index() int {
	for i, known := range sensorTypes {
		if known == t {
			return i
		}
	}
	return -1
}

// Valid reports whether t is one of the supported sensor types.
func (t SensorType) Valid() bool {
	return t.Index() >= 0
}

// Description returns a human readable label for the sensor type.
func (t SensorType) Description() string {
	switch t {
	case SensorMotion:
		return "Motion sensor"
	case SensorTemperature:
		return "Temperature sensor"
	case SensorAccess:
		return "Access control"
	default:
		return string(t)
	}
}

// Topic returns the per-type reading topic, e.g. sensors/motion.
func (t SensorType) Topic() string {
	return TopicSensorsPrefix + strings.ToLower(string(t))
}

// ParseSensorType converts user input into a SensorType.
func ParseSensorType(value string) (SensorType, error) {
	t := SensorType(strings.ToUpper(strings.TrimSpace(value)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSensorType, value)
	}
	return t, nil
}

// Reading is one timestamped measurement flowing through the pipeline.
type Reading struct {
	ID                   int64      `json:"id"`
	Type                 SensorType `json:"type"`
	SourceID             string     `json:"sourceId"`
	Location             string     `json:"location"`
	Value                float64    `json:"value"`
	Unit                 string     `json:"unit"`
	Description          string     `json:"description"`
	Critical             bool       `json:"critical"`
	ObservedAt           time.Time  `json:"observedAt"`
	ProcessedAt          time.Time  `json:"processedAt"`
	ProcessedBy          string     `json:"processedBy"`
	ProcessingDurationMs int64      `json:"processingDurationMs"`
}

// Validate checks the fields required before a reading enters the pipeline.
func (r Reading) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidReading, r.Type)
	}
	if r.SourceID == "" {
		return fmt.Errorf("%w: source id is empty", ErrInvalidReading)
	}
	if r.ObservedAt.IsZero() {
		return fmt.Errorf("%w: observed timestamp is zero", ErrInvalidReading)
	}
	return nil
}

// ReadingMessage is the payload published for every processed reading.
type ReadingMessage struct {
	Type      SensorType `json:"type"`
	SensorID  string     `json:"sensorId"`
	Location  string     `json:"location"`
	Value     float64    `json:"value"`
	Unit      string     `json:"unit"`
	Critical  bool       `json:"critical"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewReadingMessage builds the published view of a reading.
func NewReadingMessage(r Reading) ReadingMessage {
	return ReadingMessage{
		Type:      r.Type,
		SensorID:  r.SourceID,
		Location:  r.Location,
		Value:     r.Value,
		Unit:      r.Unit,
		Critical:  r.Critical,
		Timestamp: r.ObservedAt,
	}
}
