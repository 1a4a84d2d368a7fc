package world

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/sim/schedule"
	"lumbercamp.ai/internal/sim/tasks"
)

// Out-of-range arrivals tolerated before an approach skips collision
// resolution and walks straight to its slot or deposit point.
const maxApproachMisses = 3

// Progress within this of 1.0 counts as a full unit; the per-tick increment
// is rarely exact in binary.
const progressEpsilon = 1e-9

func workerID(n uint64) string { return fmt.Sprintf("W%d", n) }

func scheduleResume(wk *Worker, fireTick uint64) schedule.Event {
	return schedule.Event{
		FireTick: fireTick,
		Kind:     schedule.KindResumeHarvest,
		WorkerID: wk.ID,
		NodeID:   wk.LastNodeID,
		Gen:      wk.CmdGen,
	}
}

// systemEvents fires due scheduled events. Each is re-validated against the
// worker's current state and dropped when stale.
func (w *World) systemEvents(nowTick uint64) {
	for _, e := range w.events.PopDue(nowTick) {
		switch e.Kind {
		case schedule.KindResumeHarvest:
			if w.fireResume(e, nowTick) {
				w.totals.EventsFired++
			} else {
				w.totals.EventsDropped++
			}
		default:
			w.totals.EventsDropped++
		}
	}
}

func (w *World) fireResume(e *schedule.Event, nowTick uint64) bool {
	wk := w.workers[e.WorkerID]
	if wk == nil || wk.CmdGen != e.Gen || !wk.Idle() {
		return false
	}
	if wk.LastNodeID == "" || wk.LastNodeID != e.NodeID {
		return false
	}
	n := w.nodes[wk.LastNodeID]
	if n == nil || n.Exhausted() {
		wk.LastNodeID = ""
		return false
	}
	w.beginHarvest(wk, n, nowTick)
	return true
}

func (w *World) systemMovement(nowTick uint64) {
	dur := w.tun.MovementTicks()
	for _, wk := range w.sortedWorkers() {
		mt := wk.MoveTask
		if mt == nil || mt.StartedTick > nowTick {
			continue
		}
		step := mt.StepLen(dur)
		remaining := wk.Pos.Dist(mt.Target)
		if mt.Elapsed(nowTick) >= dur || remaining < step-progressEpsilon || step == 0 {
			w.arrive(wk, mt, nowTick)
			continue
		}
		wk.Pos = mt.StartPos.Lerp(mt.Target, mt.Progress(nowTick, dur))
	}
}

// arrive snaps wk onto its target and runs the post-arrival transitions.
func (w *World) arrive(wk *Worker, mt *tasks.MovementTask, nowTick uint64) {
	wk.Pos = mt.Target
	wk.MoveTask = nil

	if mt.Purpose == tasks.PurposeManual && !w.tun.ManualMovesResumeWork {
		return
	}

	next := nowTick + 1
	if wk.WoodCarried > 0 {
		if w.inDepositRange(wk) {
			w.depositNow(wk, nowTick)
			return
		}
		if mt.Purpose == tasks.PurposeDeposit {
			wk.approachMisses++
		}
		w.moveToDeposit(wk, next, wk.approachMisses >= maxApproachMisses)
		return
	}
	if wk.LastNodeID == "" {
		return
	}
	n := w.nodes[wk.LastNodeID]
	if n == nil || n.Exhausted() {
		wk.LastNodeID = ""
		return
	}
	if mt.Purpose == tasks.PurposeHarvest && mt.NodeID == n.ID && wk.Pos.Dist(n.Pos) > w.tun.HarvestRange {
		wk.approachMisses++
	}
	w.beginHarvest(wk, n, next)
}

// systemHarvest advances every node's shared progress. Harvesters are taken
// in id order; the one whose contribution completes a unit receives it.
func (w *World) systemHarvest(nowTick uint64) {
	inc := w.tun.HarvestRatePerSec * w.tun.TickSeconds()
	byNode := map[string][]*Worker{}
	for _, wk := range w.sortedWorkers() {
		if wk.HarvestTask != nil {
			byNode[wk.HarvestTask.NodeID] = append(byNode[wk.HarvestTask.NodeID], wk)
		}
	}

	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		active := 0
		for _, wk := range byNode[id] {
			ht := wk.HarvestTask
			if n.Exhausted() {
				w.stopHarvest(wk)
				wk.LastNodeID = ""
				w.audit(nowTick, wk.ID, "HARVEST_STOP", n.ID, 0, wk.Pos, "exhausted")
				continue
			}
			if wk.Pos.Dist(n.Pos) > w.tun.HarvestRange {
				w.stopHarvest(wk)
				w.audit(nowTick, wk.ID, "HARVEST_STOP", n.ID, 0, wk.Pos, "out_of_range")
				continue
			}
			if wk.WoodCarried >= w.tun.MaxWoodCapacity {
				w.moveToDeposit(wk, nowTick+1, false)
				continue
			}
			active++
			n.Progress += inc
			if n.Progress < 1-progressEpsilon {
				continue
			}
			n.Progress = 0
			n.Wood--
			wk.WoodCarried++
			ht.Extracted++
			w.totals.WoodExtracted++
			w.stats.RecordExtracted(nowTick)
			w.audit(nowTick, wk.ID, "EXTRACT", n.ID, 1, wk.Pos, "")
			if wk.WoodCarried >= w.tun.MaxWoodCapacity {
				w.log.WithFields(logrus.Fields{"tick": nowTick, "worker": wk.ID, "node": n.ID}).Debug("capacity reached; returning home")
				w.moveToDeposit(wk, nowTick+1, false)
			}
			if n.Exhausted() {
				w.log.WithFields(logrus.Fields{"tick": nowTick, "node": n.ID}).Info("node exhausted")
			}
		}
		if n.Exhausted() {
			for _, wk := range byNode[id] {
				if wk.HarvestTask != nil {
					w.stopHarvest(wk)
					wk.LastNodeID = ""
				}
			}
		}
		if active == 0 || n.Exhausted() {
			n.Progress = 0
		}
	}
}
