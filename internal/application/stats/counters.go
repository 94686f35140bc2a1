package stats

import (
	"sync/atomic"

	"security-monitor-service/internal/domain"
)

// Counters keeps per-type totals without locks. The zero value is ready to use.
type Counters struct {
	total    [domain.SensorTypeCount]atomic.Int64
	critical [domain.SensorTypeCount]atomic.Int64
	errors   [domain.SensorTypeCount]atomic.Int64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

// RecordProcessed counts one processed reading. Unknown types are ignored.
func (c *Counters) RecordProcessed(sensorType domain.SensorType, critical bool) {
	i := sensorType.Index()
	if i < 0 {
		return
	}
	c.total[i].Add(1)
	if critical {
		c.critical[i].Add(1)
	}
}

// RecordError counts one failed reading.
func (c *Counters) RecordError(sensorType domain.SensorType) {
	if i := sensorType.Index(); i >= 0 {
		c.errors[i].Add(1)
	}
}

// Snapshot copies the counters. Every known type is present in each map.
// Values are read individually, so a snapshot taken under load may mix
// increments that happened during the copy.
func (c *Counters) Snapshot() domain.CounterSnapshot {
	snap := domain.CounterSnapshot{
		Total:    make(map[domain.SensorType]int64, domain.SensorTypeCount),
		Critical: make(map[domain.SensorType]int64, domain.SensorTypeCount),
		Errors:   make(map[domain.SensorType]int64, domain.SensorTypeCount),
	}
	for i, t := range domain.SensorTypes() {
		snap.Total[t] = c.total[i].Load()
		snap.Critical[t] = c.critical[i].Load()
		snap.Errors[t] = c.errors[i].Load()
	}
	return snap
}
