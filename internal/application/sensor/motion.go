package sensor

import (
	"context"
	"math"

	"security-monitor-service/internal/domain"
)

const (
	DefaultMotionThreshold     = 5.0
	DefaultMotionHighThreshold = 9.0

	// motionSustainedTicks is how many net consecutive readings at or above
	// the threshold make a reading critical.
	motionSustainedTicks = 3
	// motionMaxPlateau bounds how long a spike may sit at its target.
	motionMaxPlateau = 4
)

var motionLocations = []string{
	"Main Entrance", "Laboratory", "Vault",
	"Server Room", "Executive Office", "North Hallway",
}

// MotionConfig holds the motion classification thresholds.
type MotionConfig struct {
	Threshold     float64
	HighThreshold float64
}

// Motion classifies detections-per-minute with hysteresis.
type Motion struct {
	base
	cfg MotionConfig

	consecutiveHigh int

	rate        float64
	spikeActive bool
	spikeTarget float64
	spikeStep   float64
	plateau     int
}

// NewMotion creates a motion strategy.
func NewMotion(cfg MotionConfig, opts Options) *Motion {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultMotionThreshold
	}
	if cfg.HighThreshold < cfg.Threshold {
		cfg.HighThreshold = math.Max(DefaultMotionHighThreshold, cfg.Threshold)
	}

	m := &Motion{cfg: cfg, rate: 1.8}
	m.base.init(domain.SensorMotion, "MOTION", "detections/min", motionLocations, opts)
	return m
}

func (m *Motion) Process(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	return m.process(ctx, reading, m.RequiresAlert)
}

// RequiresAlert updates the hysteresis counter and reports whether value is
// critical. Each call counts as one observed reading.
func (m *Motion) RequiresAlert(value float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value >= m.cfg.Threshold {
		m.consecutiveHigh++
	} else if m.consecutiveHigh > 0 {
		m.consecutiveHigh--
	}
	return value >= m.cfg.HighThreshold || m.consecutiveHigh >= motionSustainedTicks
}

func (m *Motion) Simulate() domain.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.spikeActive && m.rnd.Float64() < 0.02 {
		m.spikeActive = true
		m.spikeTarget = 8 + m.rnd.Float64()*6
		m.spikeStep = 0.8 + m.rnd.Float64()*0.6
		m.plateau = 0
	}

	if m.spikeActive {
		next := m.rate + m.spikeStep
		if next >= m.spikeTarget {
			m.rate = m.spikeTarget
			m.plateau++
			if m.rnd.Float64() < 0.25 || m.plateau >= motionMaxPlateau {
				m.spikeActive = false
			}
		} else {
			m.rate = next
		}
	} else {
		drift := (2.0 - m.rate) * 0.12
		noise := m.rnd.NormFloat64() * 0.20
		m.rate += drift + noise
	}

	if !m.spikeActive && m.rate > 2.0 {
		m.rate -= 0.2 + m.rnd.Float64()*0.2
	}

	m.rate = clamp(m.rate, 0, 14)
	return m.newReading(math.Round(m.rate), "Motion detected by infrared sensor")
}

var _ Strategy = (*Motion)(nil)
