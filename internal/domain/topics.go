package domain

import "time"

const (
	TopicSensorEvents  = "sensors/events"
	TopicSensorsPrefix = "sensors/"
	TopicStats         = "stats"
	TopicAlerts        = "alerts"
	TopicAlertsPrefix  = "alerts/"
	// TopicAll matches every topic when used as a subscription pattern.
	TopicAll = "#"
)

// Message is what subscribers receive from the broker.
type Message struct {
	Topic       string    `json:"topic"`
	Payload     any       `json:"payload"`
	PublishedAt time.Time `json:"publishedAt"`
}
