package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"security-monitor-service/internal/domain"
	"security-monitor-service/internal/logging"
)

const subjectPrefix = "[SECURITY MONITOR] "

// EmailConfig configures SMTP delivery. An empty Host disables sending.
type EmailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	To        []string
	PerMinute int
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailChannel mails HIGH and CRITICAL alerts.
type EmailChannel struct {
	cfg     EmailConfig
	auth    smtp.Auth
	limiter *rate.Limiter
	send    sendFunc
	logger  *logging.Logger
}

// EmailOption customises an EmailChannel.
type EmailOption func(*EmailChannel)

// WithSender replaces smtp.SendMail.
func WithSender(fn func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error) EmailOption {
	return func(c *EmailChannel) {
		if fn != nil {
			c.send = fn
		}
	}
}

func NewEmailChannel(cfg EmailConfig, logger *logging.Logger, opts ...EmailOption) *EmailChannel {
	perMinute := cfg.PerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	c := &EmailChannel{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		send:    smtp.SendMail,
		logger:  logger.With("channel", "email"),
	}
	if cfg.Username != "" {
		c.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EmailChannel) Name() string { return "email" }

// Enabled reports whether a mail server and recipients are configured.
func (c *EmailChannel) Enabled() bool {
	return c.cfg.Host != "" && len(c.cfg.To) > 0
}

func (c *EmailChannel) Accepts(level domain.AlertLevel) bool {
	return level >= domain.AlertHigh
}

func (c *EmailChannel) Send(ctx context.Context, alert domain.Alert) error {
	if !c.Enabled() {
		c.logger.Info("email delivery disabled, alert logged only", "alertId", alert.ID, "title", alert.Title)
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("email throttled: %w", err)
	}

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.send(addr, c.auth, c.cfg.From, c.cfg.To, c.compose(alert))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send email via %s: %w", addr, err)
		}
		c.logger.Info("alert email sent", "alertId", alert.ID, "recipients", len(c.cfg.To))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send email via %s: %w", addr, ctx.Err())
	}
}

func (c *EmailChannel) compose(alert domain.Alert) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s%s\r\n", subjectPrefix, sanitizeHeader(alert.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString("SECURITY MONITOR\r\n")
	b.WriteString("================\r\n\r\n")
	fmt.Fprintf(&b, "Level: %s\r\n", alert.Level)
	fmt.Fprintf(&b, "Location: %s\r\n", alert.Location)
	fmt.Fprintf(&b, "Message: %s\r\n", alert.Message)
	fmt.Fprintf(&b, "Sensor: %s (%s)\r\n", alert.RelatedType, alert.RelatedSourceID)
	fmt.Fprintf(&b, "Time: %s\r\n\r\n", alert.CreatedAt.Format(time.RFC3339))
	b.WriteString("Please take action immediately.\r\n")
	return b.Bytes()
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

var errNoRecipients = errors.New("no recipients configured")

// Validate reports configuration problems that would make delivery fail.
func (cfg EmailConfig) Validate() error {
	if cfg.Host == "" {
		return nil
	}
	if len(cfg.To) == 0 {
		return errNoRecipients
	}
	if cfg.From == "" {
		return errors.New("sender address is required")
	}
	return nil
}
