package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"security-monitor-service/internal/domain"
)

// DefaultCooldown is the minimum spacing between alerts for the same key.
const DefaultCooldown = 120 * time.Second

// Key identifies a cooldown slot, e.g. TEMPERATURE@Reactor.
func Key(sensorType domain.SensorType, location string) string {
	return string(sensorType) + "@" + location
}

// Claim is a won cooldown slot. It can be handed back with Ledger.Release.
type Claim struct {
	key  string
	at   int64
	prev int64
}

// Ledger tracks the last alert time per key. Slots are created on first use
// and never removed; a zero value means no alert has been recorded.
type Ledger struct {
	window time.Duration
	slots  sync.Map // string -> *atomic.Int64 (unix nanos)
}

func NewLedger(window time.Duration) *Ledger {
	if window < 0 {
		window = 0
	}
	return &Ledger{window: window}
}

// TryAcquire claims key at the given instant unless another alert for key
// happened less than the window ago, in which case it reports the time left.
func (l *Ledger) TryAcquire(key string, at time.Time) (Claim, time.Duration, bool) {
	now := at.UnixNano()
	slot := l.slot(key)
	for {
		last := slot.Load()
		if last != 0 {
			elapsed := time.Duration(now - last)
			if elapsed < l.window {
				return Claim{}, l.window - elapsed, false
			}
		}
		if slot.CompareAndSwap(last, now) {
			return Claim{key: key, at: now, prev: last}, 0, true
		}
	}
}

// Release restores the slot to its previous value if nobody claimed it since.
func (l *Ledger) Release(c Claim) bool {
	if c.key == "" {
		return false
	}
	v, ok := l.slots.Load(c.key)
	if !ok {
		return false
	}
	return v.(*atomic.Int64).CompareAndSwap(c.at, c.prev)
}

// Last returns the most recent alert instant for key.
func (l *Ledger) Last(key string) (time.Time, bool) {
	v, ok := l.slots.Load(key)
	if !ok {
		return time.Time{}, false
	}
	n := v.(*atomic.Int64).Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

// Len counts slots that hold an alert.
func (l *Ledger) Len() int {
	n := 0
	l.slots.Range(func(_, v any) bool {
		if v.(*atomic.Int64).Load() != 0 {
			n++
		}
		return true
	})
	return n
}

func (l *Ledger) slot(key string) *atomic.Int64 {
	if v, ok := l.slots.Load(key); ok {
		return v.(*atomic.Int64)
	}
	v, _ := l.slots.LoadOrStore(key, new(atomic.Int64))
	return v.(*atomic.Int64)
}
