package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlertLevel orders alerts by severity. Higher values are more severe.
type AlertLevel int

const (
	AlertLow AlertLevel = iota
	AlertMedium
	AlertHigh
	AlertCritical
)

// AlertLevels returns every level from least to most severe.
func AlertLevels() []AlertLevel {
	return []AlertLevel{AlertLow, AlertMedium, AlertHigh, AlertCritical}
}

func (l AlertLevel) String() string {
	switch l {
	case AlertLow:
		return "LOW"
	case AlertMedium:
		return "MEDIUM"
	case AlertHigh:
		return "HIGH"
	case AlertCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Valid reports whether l is a known level.
func (l AlertLevel) Valid() bool {
	return l >= AlertLow && l <= AlertCritical
}

// Topic returns the per-level alert topic, e.g. alerts/CRITICAL.
func (l AlertLevel) Topic() string {
	return TopicAlertsPrefix + l.String()
}

// MarshalText renders the level by name.
func (l AlertLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts level names case-insensitively.
func (l *AlertLevel) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseAlertLevel converts a level name into an AlertLevel.
func ParseAlertLevel(value string) (AlertLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "LOW":
		return AlertLow, nil
	case "MEDIUM":
		return AlertMedium, nil
	case "HIGH":
		return AlertHigh, nil
	case "CRITICAL":
		return AlertCritical, nil
	default:
		return 0, fmt.Errorf("unknown alert level %q", value)
	}
}

// Alert is a security alert raised from a critical reading.
type Alert struct {
	ID              int64      `json:"id"`
	Level           AlertLevel `json:"level"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	RelatedType     SensorType `json:"relatedType"`
	RelatedSourceID string     `json:"relatedSourceId"`
	Location        string     `json:"location"`
	CreatedAt       time.Time  `json:"createdAt"`
	AcknowledgedAt  *time.Time `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy  string     `json:"acknowledgedBy,omitempty"`
	Resolved        bool       `json:"resolved"`
}

// Acknowledged reports whether the alert has been acknowledged.
func (a Alert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}

// Acknowledge records actor as acknowledger unless someone already did.
// It returns false when the alert was already acknowledged.
func (a *Alert) Acknowledge(actor string, at time.Time) bool {
	if a.AcknowledgedAt != nil {
		return false
	}
	ts := at
	a.AcknowledgedAt = &ts
	a.AcknowledgedBy = actor
	return true
}

// Resolve marks the alert resolved, acknowledging it on the way if needed.
func (a *Alert) Resolve(actor string, at time.Time) {
	a.Acknowledge(actor, at)
	a.Resolved = true
}

// AlertMessage is the payload published to alert topics.
type AlertMessage struct {
	ID        int64      `json:"id"`
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Location  string     `json:"location"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewAlertMessage builds the published view of an alert.
func NewAlertMessage(a Alert) AlertMessage {
	return AlertMessage{
		ID:        a.ID,
		Level:     a.Level,
		Title:     a.Title,
		Message:   a.Message,
		Location:  a.Location,
		Timestamp: a.CreatedAt,
	}
}
