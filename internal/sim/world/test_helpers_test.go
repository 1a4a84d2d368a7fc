package world

import (
	"testing"

	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/geom"
	"lumbercamp.ai/internal/sim/tuning"
)

func newTestWorld(t *testing.T, mutate func(*tuning.Tuning)) *World {
	t.Helper()
	tun := tuning.Defaults()
	if mutate != nil {
		mutate(&tun)
	}
	w, err := New(WorldConfig{ID: "test", Tuning: tun})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

// fastHarvest extracts one unit per tick.
func fastHarvest(tun *tuning.Tuning) {
	tun.HarvestRatePerSec = float64(tun.TickRateHz)
}

func stepN(w *World, n int) {
	for i := 0; i < n; i++ {
		w.StepOnce(nil)
	}
}

// stepUntil steps until cond holds and returns the tick it held after.
func stepUntil(t *testing.T, w *World, maxTicks int, cond func() bool) uint64 {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		tick, _ := w.StepOnce(nil)
		if cond() {
			return tick
		}
	}
	t.Fatalf("condition not reached within %d ticks (tick=%d)", maxTicks, w.CurrentTick())
	return 0
}

func mustWorker(t *testing.T, w *World, id string) *Worker {
	t.Helper()
	wk := w.workers[id]
	if wk == nil {
		t.Fatalf("missing worker %s", id)
	}
	return wk
}

func totalWood(w *World) int {
	n := w.home.WoodStored + w.home.WoodSpent
	for _, nd := range w.nodes {
		n += nd.Wood
	}
	for _, wk := range w.workers {
		n += wk.WoodCarried
	}
	return n
}

func cmd(kind string) protocol.Command { return protocol.Command{Kind: kind} }

func pt(x, y float64) *[2]float64 {
	p := [2]float64{x, y}
	return &p
}

func v(x, y float64) geom.Vec2 { return geom.V(x, y) }

type recordingTickLogger struct{ entries []TickLogEntry }

func (l *recordingTickLogger) WriteTick(e TickLogEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

type recordingAuditLogger struct{ entries []AuditEntry }

func (l *recordingAuditLogger) WriteAudit(e AuditEntry) error {
	l.entries = append(l.entries, e)
	return nil
}

func (l *recordingAuditLogger) count(action string) int {
	n := 0
	for _, e := range l.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}
