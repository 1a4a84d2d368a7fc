package world

import (
	"time"

	"lumbercamp.ai/internal/sim/placement"
)

// Totals are monotonic counters since world start.
type Totals struct {
	CommandsApplied  uint64 `json:"commands_applied"`
	CommandsRejected uint64 `json:"commands_rejected"`
	WoodExtracted    uint64 `json:"wood_extracted"`
	WoodDeposited    uint64 `json:"wood_deposited"`
	WorkersTrained   uint64 `json:"workers_trained"`
	EventsFired      uint64 `json:"events_fired"`
	EventsDropped    uint64 `json:"events_dropped"`
	EventsCancelled  uint64 `json:"events_cancelled"`
	// Resolved counts non-direct target resolutions, indexed by placement.Resolution.
	Resolved [3]uint64 `json:"resolved"`
}

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Workers       int `json:"workers"`
	Harvesting    int `json:"harvesting"`
	Moving        int `json:"moving"`
	Viewers       int `json:"viewers"`
	PendingEvents int `json:"pending_events"`

	WoodStored    int `json:"wood_stored"`
	WoodRemaining int `json:"wood_remaining"`
	WoodCarried   int `json:"wood_carried"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Totals Totals `json:"totals"`

	StatsWindowTicks uint64      `json:"stats_window_ticks"`
	StatsWindow      StatsBucket `json:"stats_window"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) storeMetrics(nowTick uint64, took time.Duration) {
	m := WorldMetrics{
		Tick:          w.tick.Load(),
		Workers:       len(w.workers),
		Viewers:       len(w.viewers),
		PendingEvents: w.events.Len(),
		WoodStored:    w.home.WoodStored,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:           float64(took.Microseconds()) / 1000.0,
		Totals:           w.totals,
		StatsWindowTicks: w.stats.WindowTicks(),
		StatsWindow:      w.stats.Summarize(nowTick),
	}
	for _, wk := range w.workers {
		m.WoodCarried += wk.WoodCarried
		switch {
		case wk.MoveTask != nil:
			m.Moving++
		case wk.HarvestTask != nil:
			m.Harvesting++
		}
	}
	for _, n := range w.nodes {
		m.WoodRemaining += n.Wood
	}
	w.metrics.Store(m)
}

// ResolutionCount reports how many targets were resolved by r since start.
func (t Totals) ResolutionCount(r placement.Resolution) uint64 {
	if int(r) < 0 || int(r) >= len(t.Resolved) {
		return 0
	}
	return t.Resolved[r]
}
