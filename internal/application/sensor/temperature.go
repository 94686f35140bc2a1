package sensor

import (
	"context"
	"math"

	"security-monitor-service/internal/domain"
)

const (
	DefaultTemperatureMin = 15.0
	DefaultTemperatureMax = 30.0

	physicalMinTemperature = -20.0
	physicalMaxTemperature = 80.0
)

var temperatureLocations = []string{
	"Server Room", "Chemistry Lab", "Arc Reactor",
	"Warehouse", "Data Center", "Control Room",
}

// TemperatureConfig holds the acceptable temperature range in °C.
type TemperatureConfig struct {
	Min float64
	Max float64
}

// Temperature flags readings outside the configured range.
type Temperature struct {
	base
	cfg TemperatureConfig

	baseline      float64
	current       float64
	anomalyActive bool
	anomalyTarget float64
	anomalyStep   float64
}

// NewTemperature creates a temperature strategy.
func NewTemperature(cfg TemperatureConfig, opts Options) *Temperature {
	if cfg.Min >= cfg.Max {
		cfg.Min, cfg.Max = DefaultTemperatureMin, DefaultTemperatureMax
	}

	t := &Temperature{cfg: cfg}
	t.base.init(domain.SensorTemperature, "TEMP", "°C", temperatureLocations, opts)
	t.baseline = (cfg.Min + cfg.Max) / 2
	t.current = t.baseline + boundedGaussian(t.rnd, 0, 0.8, -1.5, 1.5)
	return t
}

func (t *Temperature) Process(ctx context.Context, reading domain.Reading) (domain.Reading, error) {
	return t.process(ctx, reading, t.RequiresAlert)
}

func (t *Temperature) RequiresAlert(value float64) bool {
	return value < t.cfg.Min || value > t.cfg.Max
}

func (t *Temperature) Simulate() domain.Reading {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.anomalyActive && t.rnd.Float64() < 0.003 {
		t.startAnomaly()
	}

	if t.anomalyActive {
		next := t.current + t.anomalyStep
		reached := (t.anomalyStep > 0 && next >= t.anomalyTarget) || (t.anomalyStep < 0 && next <= t.anomalyTarget)
		if reached {
			t.current = t.anomalyTarget
			if t.rnd.Float64() < 0.2 {
				t.anomalyActive = false
			}
		} else {
			t.current = next
		}
	} else {
		step := boundedGaussian(t.rnd, 0, 0.18, -0.35, 0.35)
		pull := (t.baseline - t.current) * 0.05
		t.current += step + pull
	}

	t.current = clamp(math.Round(t.current*10)/10, physicalMinTemperature, physicalMaxTemperature)
	return t.newReading(t.current, "Ambient temperature reading")
}

// startAnomaly picks a drift target beyond the configured range. The target
// stays inside the physical range so the drift can always reach it.
func (t *Temperature) startAnomaly() {
	t.anomalyActive = true
	if t.rnd.Intn(2) == 0 {
		t.anomalyTarget = t.cfg.Max + 15 + t.rnd.Float64()*8
	} else {
		t.anomalyTarget = t.cfg.Min - 10 - t.rnd.Float64()*6
	}
	t.anomalyTarget = clamp(math.Round(t.anomalyTarget*10)/10, physicalMinTemperature, physicalMaxTemperature)

	step := 0.6 + t.rnd.Float64()*0.6
	if t.anomalyTarget < t.current {
		step = -step
	}
	t.anomalyStep = step
}

var _ Strategy = (*Temperature)(nil)
