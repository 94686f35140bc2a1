package notification_test

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"security-monitor-service/internal/application/notification"
	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

type publishRecorder struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *publishRecorder) Publish(_ context.Context, topic string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

type stubChannel struct {
	name    string
	minimum domain.AlertLevel
	send    func(ctx context.Context) error
	calls   int
}

func (s *stubChannel) Name() string { return s.name }

func (s *stubChannel) Accepts(level domain.AlertLevel) bool { return level >= s.minimum }

func (s *stubChannel) Send(ctx context.Context, _ domain.Alert) error {
	s.calls++
	if s.send == nil {
		return nil
	}
	return s.send(ctx)
}

func criticalAlert() domain.Alert {
	return domain.Alert{
		ID:              7,
		Level:           domain.AlertCritical,
		Title:           "CRITICAL TEMPERATURE",
		Message:         "Alert of Temperature sensor detected at Reactor",
		RelatedType:     domain.SensorTemperature,
		RelatedSourceID: "TEMP-1234abcd",
		Location:        "Reactor",
		CreatedAt:       time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestFanoutPublishesToBothAlertTopics(t *testing.T) {
	pub := &publishRecorder{}
	fanout := notification.NewFanout(pub, logging.Discard())

	report := fanout.Dispatch(context.Background(), criticalAlert())

	assert.Equal(t, []string{"alerts", "alerts/CRITICAL"}, pub.topics)
	assert.Empty(t, report.Failed())
	assert.EqualValues(t, 7, report.AlertID)
}

func TestFanoutIsolatesFailures(t *testing.T) {
	pub := &publishRecorder{err: errors.New("broker down")}
	panicky := &stubChannel{name: "panicky", send: func(context.Context) error { panic("boom") }}
	healthy := &stubChannel{name: "healthy"}

	report := notification.NewFanout(pub, logging.Discard(), panicky, healthy).
		Dispatch(context.Background(), criticalAlert())

	assert.ElementsMatch(t, []string{"publish:alerts", "publish:alerts/CRITICAL", "panicky"}, report.Failed())
	assert.Equal(t, 1, healthy.calls)
	assert.True(t, report.Attempted("healthy"))
}

func TestFanoutSkipsChannelsBelowLevel(t *testing.T) {
	highOnly := &stubChannel{name: "high-only", minimum: domain.AlertHigh}
	always := &stubChannel{name: "always"}
	fanout := notification.NewFanout(&publishRecorder{}, logging.Discard(), highOnly, always)

	alert := criticalAlert()
	alert.Level = domain.AlertMedium
	report := fanout.Dispatch(context.Background(), alert)

	assert.Zero(t, highOnly.calls)
	assert.False(t, report.Attempted("high-only"))
	assert.Equal(t, 1, always.calls)
}

func TestFanoutStepTimeout(t *testing.T) {
	slow := &stubChannel{name: "slow", send: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	fanout := notification.NewFanout(nil, logging.Discard(), slow).WithStepTimeout(10 * time.Millisecond)

	start := time.Now()
	report := fanout.Dispatch(context.Background(), criticalAlert())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"slow"}, report.Failed())
}

func TestEmailChannelSendsForHighAndCritical(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	sender := func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	email := notification.NewEmailChannel(notification.EmailConfig{
		Host: "mail.local",
		Port: 2525,
		From: "monitor@local",
		To:   []string{"ops@local", "security@local"},
	}, logging.Discard(), notification.WithSender(sender))

	assert.True(t, email.Accepts(domain.AlertHigh))
	assert.True(t, email.Accepts(domain.AlertCritical))
	assert.False(t, email.Accepts(domain.AlertMedium))
	assert.False(t, email.Accepts(domain.AlertLow))

	require.NoError(t, email.Send(context.Background(), criticalAlert()))
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"ops@local", "security@local"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [SECURITY MONITOR] CRITICAL TEMPERATURE\r\n")
	assert.Contains(t, gotMsg, "Sensor: TEMPERATURE (TEMP-1234abcd)")
}

func TestEmailChannelDisabledWithoutHost(t *testing.T) {
	called := false
	email := notification.NewEmailChannel(notification.EmailConfig{To: []string{"ops@local"}}, logging.Discard(),
		notification.WithSender(func(string, smtp.Auth, string, []string, []byte) error {
			called = true
			return nil
		}))

	assert.False(t, email.Enabled())
	require.NoError(t, email.Send(context.Background(), criticalAlert()))
	assert.False(t, called)
}

func TestEmailChannelIsThrottled(t *testing.T) {
	sent := 0
	email := notification.NewEmailChannel(notification.EmailConfig{
		Host:      "mail.local",
		Port:      25,
		From:      "monitor@local",
		To:        []string{"ops@local"},
		PerMinute: 1,
	}, logging.Discard(), notification.WithSender(func(string, smtp.Auth, string, []string, []byte) error {
		sent++
		return nil
	}))

	require.NoError(t, email.Send(context.Background(), criticalAlert()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := email.Send(ctx, criticalAlert())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "throttled"))
	assert.Equal(t, 1, sent)
}

func TestEmailChannelWrapsSendErrors(t *testing.T) {
	smtpErr := errors.New("connection refused")
	email := notification.NewEmailChannel(notification.EmailConfig{
		Host: "mail.local", Port: 25, From: "monitor@local", To: []string{"ops@local"},
	}, logging.Discard(), notification.WithSender(func(string, smtp.Auth, string, []string, []byte) error {
		return smtpErr
	}))

	err := email.Send(context.Background(), criticalAlert())
	assert.ErrorIs(t, err, smtpErr)
}

func TestEmailConfigValidate(t *testing.T) {
	assert.NoError(t, notification.EmailConfig{}.Validate())
	assert.Error(t, notification.EmailConfig{Host: "mail.local"}.Validate())
	assert.Error(t, notification.EmailConfig{Host: "mail.local", To: []string{"a@b"}}.Validate())
	assert.NoError(t, notification.EmailConfig{Host: "mail.local", From: "x@y", To: []string{"a@b"}}.Validate())
}
