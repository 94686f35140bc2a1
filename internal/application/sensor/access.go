package sensor

import (
	"context"
	"fmt"

	"security-monitor-service/internal/domain"
)

const DefaultAccessMaxFailedAttempts = 3

var accessLocations = []string{
	"Main Door", "Secure Vault", "Level 5 Lab",
	"Arc Reactor - Restricted Access", "Central Control Room", "Armory",
}

// AccessConfig holds the failed-attempt threshold.
type AccessConfig struct {
	MaxFailedAttempts int
}

// Access classifies failed authentication attempts.
type Access struct {
	base
	cfg AccessConfig

	burstActive bool
	burstTicks  int
}

// NewAccess creates an access-control strategy.
func NewAccess(cfg AccessConfig, opts Options) *Access {
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = DefaultAccessMaxFailedAttempts
	}

	a := &Access{cfg: cfg}
	a.base.init(domain.SensorAccess, "ACCESS", "attempts", accessLocations, opts)
	return a
}

func (a *Access) Process(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	return a.process(ctx, reading, a.RequiresAlert)
}

// RequiresAlert treats zero as a successful access and positive values as failures.
func (a *Access) RequiresAlert(value float64) bool {
	return value >= float64(a.cfg.MaxFailedAttempts)
}

func (a *Access) Simulate() domain.Reading {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.burstActive && a.rnd.Float64() < 0.005 {
		a.burstActive = true
		a.burstTicks = 2 + a.rnd.Intn(4)
	}

	var failed int
	switch {
	case a.burstActive:
		failed = 2 + a.rnd.Intn(5)
		a.burstTicks--
		if a.burstTicks <= 0 || a.rnd.Float64() < 0.2 {
			a.burstActive = false
		}
	case a.rnd.Float64() < 0.95:
		failed = 0
	default:
		failed = 1 + a.rnd.Intn(2)
	}

	description := "Access granted - valid credentials"
	if failed > 0 {
		description = fmt.Sprintf("Access denied - invalid credentials (attempts: %d)", failed)
	}
	return a.newReading(float64(failed), description)
}

var _ Strategy = (*Access)(nil)
