package domain

import "time"

// CounterSnapshot is a point-in-time copy of the per-type counters.
type CounterSnapshot struct {
	Total    map[SensorType]int64 `json:"total"`
	Critical map[SensorType]int64 `json:"critical"`
	Errors   map[SensorType]int64 `json:"errors"`
}

// TotalEvents sums processed readings across all types.
func (s CounterSnapshot) TotalEvents() int64 {
	var n int64
	for _, v := range s.Total {
		n += v
	}
	return n
}

// CriticalEvents sums critical readings across all types.
func (s CounterSnapshot) CriticalEvents() int64 {
	var n int64
	for _, v := range s.Critical {
		n += v
	}
	return n
}

// PoolOccupancy describes the dispatcher worker pool at a point in time.
type PoolOccupancy struct {
	Active        int `json:"active"`
	PoolSize      int `json:"poolSize"`
	CoreSize      int `json:"corePoolSize"`
	MaxSize       int `json:"maxPoolSize"`
	Queued        int `json:"queued"`
	QueueCapacity int `json:"queueCapacity"`
}

// Diagnostics is the snapshot served over HTTP, gRPC and the stats topic.
type Diagnostics struct {
	TotalEvents       int64                `json:"totalEvents"`
	CriticalEvents    int64                `json:"criticalEvents"`
	Counters          CounterSnapshot      `json:"counters"`
	Pool              PoolOccupancy        `json:"threadPool"`
	UnresolvedByLevel map[AlertLevel]int64 `json:"unresolvedByLevel"`
	GeneratedAt       time.Time            `json:"generatedAt"`
}
