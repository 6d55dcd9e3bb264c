// Package quota implements the fleet-exploration fairness counter: the
// fraction of dispatches allocated to recently registered assets over a
// rolling window. The counter is shared by every concurrent audit, so the
// read-then-conditionally-increment must be a single compare-and-swap.
package quota

import (
	"sync/atomic"
	"time"
)

// ExplorationQuota is the injectable counter service consulted by the
// auditor. A distributed implementation can replace the in-process one when
// the service scales horizontally.
type ExplorationQuota interface {
	// TryAcquireNew atomically checks the window ratio and, if there is
	// room, consumes one new-asset slot. Returning false leaves the
	// counters untouched.
	TryAcquireNew() bool
	// RecordEstablished counts an approval that went to an experienced
	// asset.
	RecordEstablished()
	// Snapshot returns the current window counters.
	Snapshot() Snapshot
}

// Snapshot is a point-in-time view of the window counters.
type Snapshot struct {
	NewDispatches   uint32
	TotalDispatches uint32
}

// Ratio returns the new-asset fraction, zero for an empty window.
func (s Snapshot) Ratio() float64 {
	if s.TotalDispatches == 0 {
		return 0
	}
	return float64(s.NewDispatches) / float64(s.TotalDispatches)
}

// Config defines quota settings.
type Config struct {
	// TargetRatio is the window share reserved for new assets. Defaults to
	// 0.15.
	TargetRatio float64 `json:"target_ratio"`
	// Window is the rolling reset period. Defaults to 24h.
	Window time.Duration `json:"window"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TargetRatio <= 0 {
		c.TargetRatio = 0.15
	}
	if c.Window <= 0 {
		c.Window = 24 * time.Hour
	}
}

// AtomicQuota packs (window id, new dispatches, total dispatches) into one
// uint64 so the whole read-modify-write is a single CAS. Counters reset
// implicitly when the window id rolls over; committed increments are never
// rolled back.
type AtomicQuota struct {
	cfg   Config
	state atomic.Uint64
	now   func() time.Time
}

// window id in the top 16 bits, new count in the middle 24, total in the low 24.
const counterMask = 1<<24 - 1

func pack(window uint16, newCount, total uint32) uint64 {
	return uint64(window)<<48 | uint64(newCount&counterMask)<<24 | uint64(total&counterMask)
}

func unpack(v uint64) (window uint16, newCount, total uint32) {
	return uint16(v >> 48), uint32(v>>24) & counterMask, uint32(v) & counterMask
}

// New creates an in-process quota counter.
func New(cfg Config) *AtomicQuota {
	cfg.SetDefaults()
	return &AtomicQuota{cfg: cfg, now: time.Now}
}

func (q *AtomicQuota) window() uint16 {
	return uint16(q.now().UnixNano() / int64(q.cfg.Window))
}

// TryAcquireNew implements ExplorationQuota.
func (q *AtomicQuota) TryAcquireNew() bool {
	for {
		cur := q.state.Load()
		win := q.window()
		w, n, t := unpack(cur)
		if w != win {
			n, t = 0, 0
		}
		if t > 0 && float64(n)/float64(t) >= q.cfg.TargetRatio {
			// Stale-window states still need the reset to land so the
			// snapshot stays honest.
			if w != win {
				q.state.CompareAndSwap(cur, pack(win, 0, 0))
				continue
			}
			return false
		}
		if q.state.CompareAndSwap(cur, pack(win, n+1, t+1)) {
			return true
		}
	}
}

// RecordEstablished implements ExplorationQuota.
func (q *AtomicQuota) RecordEstablished() {
	for {
		cur := q.state.Load()
		win := q.window()
		w, n, t := unpack(cur)
		if w != win {
			n, t = 0, 0
		}
		if q.state.CompareAndSwap(cur, pack(win, n, t+1)) {
			return
		}
	}
}

// Snapshot implements ExplorationQuota.
func (q *AtomicQuota) Snapshot() Snapshot {
	w, n, t := unpack(q.state.Load())
	if w != q.window() {
		return Snapshot{}
	}
	return Snapshot{NewDispatches: n, TotalDispatches: t}
}
