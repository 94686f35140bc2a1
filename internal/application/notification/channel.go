package notification

import (
	"context"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

// Channel delivers an alert outside the process.
type Channel interface {
	Name() string
	Accepts(level domain.AlertLevel) bool
	Send(ctx context.Context, alert domain.Alert) error
}

// PushChannel stands in for mobile push delivery and only logs.
type PushChannel struct {
	logger *logging.Logger
}

func NewPushChannel(logger *logging.Logger) *PushChannel {
	return &PushChannel{logger: logger.With("channel", "push")}
}

func (p *PushChannel) Name() string { return "push" }

func (p *PushChannel) Accepts(domain.AlertLevel) bool { return true }

func (p *PushChannel) Send(_ context.Context, alert domain.Alert) error {
	p.logger.Info("push notification sent", "alertId", alert.ID, "title", alert.Title, "location", alert.Location)
	return nil
}
