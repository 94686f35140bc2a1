package sensor

import (
	"fmt"

	"security-monitor-service/internal/domain"
)

// Registry maps sensor types to their strategies. It is immutable after construction.
type Registry struct {
	strategies map[domain.SensorType]Strategy
	ordered    []Strategy
}

// NewRegistry builds a registry, rejecting duplicate or unknown types.
func NewRegistry(strategies ...Strategy) (*Registry, error) {
	r := &Registry{strategies: make(map[domain.SensorType]Strategy, len(strategies))}
	for _, s := range strategies {
		if s == nil {
			continue
		}
		t := s.Type()
		if !t.Valid() {
			return nil, fmt.Errorf("register %q: %w", t, domain.ErrUnknownSensorType)
		}
		if _, exists := r.strategies[t]; exists {
			return nil, fmt.Errorf("register %s: %w", t, domain.ErrAlreadyExists)
		}
		r.strategies[t] = s
		r.ordered = append(r.ordered, s)
	}
	return r, nil
}

// Config collects the thresholds for the default strategy set.
type Config struct {
	Motion      MotionConfig
	Temperature TemperatureConfig
	Access      AccessConfig
	Options     Options
}

// NewDefaultRegistry registers the motion, temperature and access strategies.
// Each strategy gets its own seed derived from Options.Seed.
func NewDefaultRegistry(cfg Config) *Registry {
	opts := cfg.Options.normalize()
	withSeed := func(offset int64) Options {
		o := opts
		o.Seed = opts.Seed + offset
		return o
	}

	r, err := NewRegistry(
		NewMotion(cfg.Motion, withSeed(1)),
		NewTemperature(cfg.Temperature, withSeed(2)),
		NewAccess(cfg.Access, withSeed(3)),
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the strategy registered for sensorType.
func (r *Registry) Lookup(sensorType domain.SensorType) (Strategy, error) {
	s, ok := r.strategies[sensorType]
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", sensorType, domain.ErrUnknownSensorType)
	}
	return s, nil
}

// All returns the registered strategies in registration order.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, len(r.ordered))
	copy(out, r.ordered)
	return out
}
