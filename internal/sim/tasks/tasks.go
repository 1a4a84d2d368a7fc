package tasks

import "lumbercamp.ai/internal/sim/geom"

type Kind string

const (
	KindMoveTo  Kind = "MOVE_TO"
	KindHarvest Kind = "HARVEST"
)

// Purpose records why a worker is moving.
type Purpose string

const (
	PurposeManual  Purpose = "MANUAL"
	PurposeHarvest Purpose = "HARVEST"
	PurposeDeposit Purpose = "DEPOSIT"
)

type MovementTask struct {
	TaskID      string
	Kind        Kind
	Purpose     Purpose
	Target      geom.Vec2
	StartPos    geom.Vec2
	StartedTick uint64
	// NodeID is set for harvest-bound moves: the node whose slot Target is.
	NodeID string
}

// Elapsed is the number of ticks spent moving as of nowTick (inclusive).
func (mt *MovementTask) Elapsed(nowTick uint64) uint64 {
	if nowTick < mt.StartedTick {
		return 0
	}
	return nowTick - mt.StartedTick + 1
}

// Progress is the fraction of the fixed travel time covered, clamped to [0,1].
func (mt *MovementTask) Progress(nowTick, durationTicks uint64) float64 {
	if durationTicks == 0 {
		return 1
	}
	p := float64(mt.Elapsed(nowTick)) / float64(durationTicks)
	if p > 1 {
		p = 1
	}
	return p
}

// StepLen is the distance covered per tick.
func (mt *MovementTask) StepLen(durationTicks uint64) float64 {
	if durationTicks == 0 {
		return mt.StartPos.Dist(mt.Target)
	}
	return mt.StartPos.Dist(mt.Target) / float64(durationTicks)
}

type HarvestTask struct {
	TaskID      string
	Kind        Kind
	NodeID      string
	StartedTick uint64
	// Slot is the position the worker registered at.
	Slot geom.Vec2
	// Extracted counts units this task has taken from the node.
	Extracted int
}
