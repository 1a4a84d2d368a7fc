package world

import (
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/geom"
	"lumbercamp.ai/internal/sim/tasks"
)

type Worker struct {
	ID          string
	Pos         geom.Vec2
	WoodCarried int

	// LastNodeID is the node to go back to after a deposit round-trip.
	LastNodeID string

	MoveTask    *tasks.MovementTask
	HarvestTask *tasks.HarvestTask

	// CmdGen is bumped by every manual command; scheduled events carry the
	// value they were created with.
	CmdGen uint64

	// Consecutive approaches that arrived out of range.
	approachMisses int
}

func (wk *Worker) Idle() bool { return wk.MoveTask == nil && wk.HarvestTask == nil }

func (wk *Worker) State() string {
	switch {
	case wk.MoveTask != nil:
		return protocol.WorkerMoving
	case wk.HarvestTask != nil:
		return protocol.WorkerHarvesting
	}
	return protocol.WorkerIdle
}

// Occupied is the point this worker lays claim to: its target while moving.
func (wk *Worker) Occupied() geom.Vec2 {
	if wk.MoveTask != nil {
		return wk.MoveTask.Target
	}
	return wk.Pos
}

type ResourceNode struct {
	ID   string
	Pos  geom.Vec2
	Wood int
	// Progress toward the next unit, in [0,1).
	Progress float64
}

func (n *ResourceNode) Exhausted() bool { return n.Wood <= 0 }

type HomeBase struct {
	Pos        geom.Vec2
	WoodStored int
	// WoodSpent is wood consumed by training, kept for the conservation check.
	WoodSpent int
}

type EntityKind int

const (
	EntityNone EntityKind = iota
	EntityHome
	EntityWorker
	EntityNode
)

func (k EntityKind) String() string {
	switch k {
	case EntityHome:
		return "home"
	case EntityWorker:
		return "worker"
	case EntityNode:
		return "node"
	}
	return "none"
}

// EntityRef names one entity. ID is empty for EntityNone and EntityHome.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

func NoEntity() EntityRef           { return EntityRef{} }
func HomeRef() EntityRef            { return EntityRef{Kind: EntityHome} }
func WorkerRef(id string) EntityRef { return EntityRef{Kind: EntityWorker, ID: id} }
func NodeRef(id string) EntityRef   { return EntityRef{Kind: EntityNode, ID: id} }

// ParseEntity maps a SELECT target ("", "home", or a worker id) to a ref.
func ParseEntity(s string) EntityRef {
	switch s {
	case "":
		return NoEntity()
	case protocol.EntityHome:
		return HomeRef()
	}
	return WorkerRef(s)
}

func (r EntityRef) String() string {
	if r.ID != "" {
		return r.Kind.String() + ":" + r.ID
	}
	return r.Kind.String()
}
