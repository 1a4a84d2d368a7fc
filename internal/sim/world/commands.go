package world

import (
	"math"

	"github.com/sirupsen/logrus"

	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/geom"
	"lumbercamp.ai/internal/sim/placement"
	"lumbercamp.ai/internal/sim/tasks"
)

// Command methods mutate world state directly. They must be called from the
// goroutine that owns the world (the Run loop, or a test/replay driver that
// steps the world itself). Each returns false when the command was a no-op.

func (w *World) apply(cmd protocol.Command, nowTick uint64) bool {
	switch cmd.Kind {
	case protocol.CmdSelect:
		return w.SelectEntity(ParseEntity(cmd.Entity))
	case protocol.CmdMove:
		if cmd.Target == nil {
			return false
		}
		return w.MoveWorker(cmd.WorkerID, geom.FromArray(*cmd.Target))
	case protocol.CmdHarvest:
		if cmd.NodeID != "" {
			return w.StartHarvestingNode(cmd.WorkerID, cmd.NodeID)
		}
		return w.StartHarvesting(cmd.WorkerID)
	case protocol.CmdDeposit:
		return w.DepositWood(cmd.WorkerID)
	case protocol.CmdTrain:
		return w.TrainWorker()
	case protocol.CmdCommandAt:
		if cmd.Target == nil {
			return false
		}
		return w.CommandAt(geom.FromArray(*cmd.Target))
	}
	return false
}

// SelectEntity makes ref the only selected entity. A ref naming an unknown
// worker, or a node, leaves the selection unchanged.
func (w *World) SelectEntity(ref EntityRef) bool {
	switch ref.Kind {
	case EntityNone, EntityHome:
		w.selection = EntityRef{Kind: ref.Kind}
		return true
	case EntityWorker:
		if w.workers[ref.ID] == nil {
			return false
		}
		w.selection = ref
		return true
	}
	return false
}

func (w *World) Selection() EntityRef { return w.selection }

// MoveWorker sends a worker to p (resolved to a collision-free point). It
// drops any harvesting state, including the node to resume.
func (w *World) MoveWorker(id string, p geom.Vec2) bool {
	wk := w.workers[id]
	if wk == nil || !finite(p) {
		return false
	}
	nowTick := w.tick.Load()
	w.manualCommand(wk)
	w.stopHarvest(wk)
	wk.LastNodeID = ""
	target, res := w.resolveFor(wk, p)
	w.startMove(wk, tasks.PurposeManual, target, "", nowTick)
	w.logMove(wk, "manual", p, target, res)
	return true
}

// StartHarvesting harvests the worker's last node, or the nearest node with
// wood left when it has none.
func (w *World) StartHarvesting(id string) bool {
	wk := w.workers[id]
	if wk == nil {
		return false
	}
	if n := w.nodes[wk.LastNodeID]; n != nil && !n.Exhausted() {
		return w.StartHarvestingNode(id, n.ID)
	}
	n := w.nearestNode(wk.Pos)
	if n == nil {
		return false
	}
	return w.StartHarvestingNode(id, n.ID)
}

// StartHarvestingNode harvests nodeID: in place when in range, otherwise by
// walking to a free slot around it. A full worker goes home first.
func (w *World) StartHarvestingNode(id, nodeID string) bool {
	wk := w.workers[id]
	n := w.nodes[nodeID]
	if wk == nil || n == nil || n.Exhausted() {
		return false
	}
	if wk.HarvestTask != nil && wk.HarvestTask.NodeID == nodeID {
		return true
	}
	w.manualCommand(wk)
	w.beginHarvest(wk, n, w.tick.Load())
	return true
}

// DepositWood unloads at home, walking there first when out of range.
func (w *World) DepositWood(id string) bool {
	wk := w.workers[id]
	if wk == nil || wk.WoodCarried == 0 {
		return false
	}
	nowTick := w.tick.Load()
	w.manualCommand(wk)
	w.stopHarvest(wk)
	wk.MoveTask = nil
	if w.inDepositRange(wk) {
		w.depositNow(wk, nowTick)
		return true
	}
	w.moveToDeposit(wk, nowTick, false)
	return true
}

// TrainWorker spends WorkerCost wood to spawn a worker next to home.
func (w *World) TrainWorker() bool {
	if w.home.WoodStored < w.tun.WorkerCost {
		return false
	}
	w.home.WoodStored -= w.tun.WorkerCost
	w.home.WoodSpent += w.tun.WorkerCost
	wk := w.spawnWorker()
	w.totals.WorkersTrained++
	nowTick := w.tick.Load()
	w.stats.RecordTrained(nowTick)
	w.audit(nowTick, wk.ID, "TRAIN", "", w.tun.WorkerCost, wk.Pos, "")
	w.log.WithFields(logrus.Fields{"tick": nowTick, "worker": wk.ID, "stored": w.home.WoodStored}).Info("worker trained")
	return true
}

// CommandAt issues the contextual command for the selected worker at p:
// harvest a node, deposit at home, or move.
func (w *World) CommandAt(p geom.Vec2) bool {
	if w.selection.Kind != EntityWorker || !finite(p) {
		return false
	}
	wk := w.workers[w.selection.ID]
	if wk == nil {
		return false
	}
	ref := w.EntityAt(p)
	switch ref.Kind {
	case EntityNode:
		return w.StartHarvestingNode(wk.ID, ref.ID)
	case EntityHome:
		if wk.WoodCarried > 0 {
			return w.DepositWood(wk.ID)
		}
	}
	return w.MoveWorker(wk.ID, p)
}

func (w *World) spawnWorker() *Worker {
	w.nextWorkerNum++
	id := workerID(w.nextWorkerNum)
	want := w.home.Pos.Add(geom.FromArray(w.tun.SpawnOffset))
	pos, _ := w.resolver.Resolve(id, want, w.home.Pos, w.occupants())
	wk := &Worker{ID: id, Pos: pos}
	w.workers[id] = wk
	return wk
}

// manualCommand invalidates scheduled transitions for wk.
func (w *World) manualCommand(wk *Worker) {
	wk.CmdGen++
	wk.approachMisses = 0
	if n := w.events.CancelWorker(wk.ID); n > 0 {
		w.totals.EventsCancelled += uint64(n)
	}
}

// beginHarvest registers wk on n when in range, or sends it toward a slot.
// Moves it starts begin stepping at startTick.
func (w *World) beginHarvest(wk *Worker, n *ResourceNode, startTick uint64) {
	nowTick := w.tick.Load()
	wk.LastNodeID = n.ID
	if wk.WoodCarried >= w.tun.MaxWoodCapacity {
		w.stopHarvest(wk)
		w.moveToDeposit(wk, startTick, false)
		return
	}
	if wk.Pos.Dist(n.Pos) <= w.tun.HarvestRange {
		wk.MoveTask = nil
		wk.approachMisses = 0
		if wk.HarvestTask != nil && wk.HarvestTask.NodeID == n.ID {
			return
		}
		wk.HarvestTask = &tasks.HarvestTask{
			TaskID:      w.newTaskID(),
			Kind:        tasks.KindHarvest,
			NodeID:      n.ID,
			StartedTick: nowTick,
			Slot:        wk.Pos,
		}
		return
	}
	w.stopHarvest(wk)
	slot := w.slots.Allocate(wk.ID, n.Pos, wk.Pos, w.claimedSlots(n.ID, wk.ID), w.rng)
	target, res := slot.Pos, placement.Direct
	if wk.approachMisses < maxApproachMisses {
		target, res = w.resolveFor(wk, slot.Pos)
	}
	w.startMove(wk, tasks.PurposeHarvest, target, n.ID, startTick)
	w.logMove(wk, "harvest", slot.Pos, target, res)
}

// moveToDeposit walks wk to the deposit point on its side of home.
func (w *World) moveToDeposit(wk *Worker, startTick uint64, unresolved bool) {
	want := w.depositPoint(wk.Pos)
	target, res := want, placement.Direct
	if !unresolved {
		target, res = w.resolveFor(wk, want)
	}
	w.startMove(wk, tasks.PurposeDeposit, target, "", startTick)
	w.logMove(wk, "deposit", want, target, res)
}

func (w *World) depositPoint(from geom.Vec2) geom.Vec2 {
	d := w.tun.DepositRange - 5
	if from == w.home.Pos {
		return w.home.Pos.Polar(0, d)
	}
	return w.home.Pos.Polar(w.home.Pos.AngleTo(from), d)
}

func (w *World) depositNow(wk *Worker, nowTick uint64) {
	amount := wk.WoodCarried
	w.home.WoodStored += amount
	wk.WoodCarried = 0
	wk.approachMisses = 0
	w.totals.WoodDeposited += uint64(amount)
	w.stats.RecordDeposited(nowTick, amount)
	w.audit(nowTick, wk.ID, "DEPOSIT", "", amount, wk.Pos, "")
	if wk.LastNodeID != "" {
		w.events.Schedule(scheduleResume(wk, nowTick+w.tun.Ticks(w.tun.DepositToHarvestDelayMs)))
	}
}

func (w *World) startMove(wk *Worker, purpose tasks.Purpose, target geom.Vec2, nodeID string, startTick uint64) {
	wk.HarvestTask = nil
	wk.MoveTask = &tasks.MovementTask{
		TaskID:      w.newTaskID(),
		Kind:        tasks.KindMoveTo,
		Purpose:     purpose,
		Target:      target,
		StartPos:    wk.Pos,
		StartedTick: startTick,
		NodeID:      nodeID,
	}
}

func (w *World) stopHarvest(wk *Worker) {
	wk.HarvestTask = nil
}

func (w *World) inDepositRange(wk *Worker) bool {
	return wk.Pos.Dist(w.home.Pos) <= w.tun.DepositRange
}

func (w *World) resolveFor(wk *Worker, p geom.Vec2) (geom.Vec2, placement.Resolution) {
	target, res := w.resolver.Resolve(wk.ID, p, wk.Pos, w.occupants())
	if res != placement.Direct {
		w.totals.Resolved[res]++
	}
	return target, res
}

// occupants lists every worker's claimed point, sorted by id.
func (w *World) occupants() []placement.Occupant {
	out := make([]placement.Occupant, 0, len(w.workers))
	for _, wk := range w.sortedWorkers() {
		out = append(out, placement.Occupant{ID: wk.ID, Pos: wk.Occupied()})
	}
	return out
}

// claimedSlots lists workers harvesting nodeID or walking to one of its slots.
func (w *World) claimedSlots(nodeID, self string) []placement.Occupant {
	var out []placement.Occupant
	for _, wk := range w.sortedWorkers() {
		if wk.ID == self {
			continue
		}
		switch {
		case wk.HarvestTask != nil && wk.HarvestTask.NodeID == nodeID:
			out = append(out, placement.Occupant{ID: wk.ID, Pos: wk.Pos})
		case wk.MoveTask != nil && wk.MoveTask.NodeID == nodeID:
			out = append(out, placement.Occupant{ID: wk.ID, Pos: wk.MoveTask.Target})
		}
	}
	return out
}

func (w *World) nearestNode(p geom.Vec2) *ResourceNode {
	var best *ResourceNode
	bestD := math.Inf(1)
	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		if n.Exhausted() {
			continue
		}
		if d := p.Dist(n.Pos); d < bestD {
			best, bestD = n, d
		}
	}
	return best
}

func (w *World) logMove(wk *Worker, why string, want, got geom.Vec2, res placement.Resolution) {
	w.log.WithFields(logrus.Fields{
		"tick":       w.tick.Load(),
		"worker":     wk.ID,
		"purpose":    why,
		"want":       want.Array(),
		"target":     got.Array(),
		"resolution": res.String(),
	}).Debug("move")
}

func finite(p geom.Vec2) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
