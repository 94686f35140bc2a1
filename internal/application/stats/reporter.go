package stats

import (
	"context"
	"fmt"
	"time"

	"security-monitor-service/internal/domain"
)

// UnresolvedCounter is the slice of the alert repository the reporter needs.
type UnresolvedCounter interface {
	CountUnresolvedByLevel(ctx context.Context, level domain.AlertLevel) (int64, error)
}

// OccupancyFunc reports the dispatcher pool state.
type OccupancyFunc func() domain.PoolOccupancy

// Reporter assembles diagnostics snapshots.
type Reporter struct {
	counters  *Counters
	occupancy OccupancyFunc
	alerts    UnresolvedCounter
	now       func() time.Time
}

func NewReporter(counters *Counters, occupancy OccupancyFunc, alerts UnresolvedCounter) *Reporter {
	if counters == nil {
		counters = NewCounters()
	}
	return &Reporter{
		counters:  counters,
		occupancy: occupancy,
		alerts:    alerts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Diagnostics returns the current snapshot. A failing alert count fails the call.
func (r *Reporter) Diagnostics(ctx context.Context) (domain.Diagnostics, error) {
	snap := r.counters.Snapshot()
	diag := domain.Diagnostics{
		TotalEvents:       snap.TotalEvents(),
		CriticalEvents:    snap.CriticalEvents(),
		Counters:          snap,
		UnresolvedByLevel: make(map[domain.AlertLevel]int64, 4),
		GeneratedAt:       r.now(),
	}
	if r.occupancy != nil {
		diag.Pool = r.occupancy()
	}
	if r.alerts != nil {
		for _, level := range domain.AlertLevels() {
			n, err := r.alerts.CountUnresolvedByLevel(ctx, level)
			if err != nil {
				return domain.Diagnostics{}, fmt.Errorf("count unresolved %s alerts: %w", level, err)
			}
			diag.UnresolvedByLevel[level] = n
		}
	}
	return diag, nil
}
