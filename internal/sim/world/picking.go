package world

import (
	"math"

	"lumbercamp.ai/internal/sim/geom"
)

// EntityAt returns what a click at p lands on: the nearest worker within the
// worker pick radius, else a node, else the home, else nothing.
func (w *World) EntityAt(p geom.Vec2) EntityRef {
	pick := w.tun.Picking

	best := ""
	bestD := math.Inf(1)
	for _, wk := range w.sortedWorkers() {
		if d := p.Dist(wk.Pos); d <= pick.WorkerRadius && d < bestD {
			best, bestD = wk.ID, d
		}
	}
	if best != "" {
		return WorkerRef(best)
	}

	bestD = math.Inf(1)
	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		if d := p.Dist(n.Pos); d <= pick.NodeRadius && d < bestD {
			best, bestD = id, d
		}
	}
	if best != "" {
		return NodeRef(best)
	}

	if p.Dist(w.home.Pos) <= pick.HomeRadius {
		return HomeRef()
	}
	return NoEntity()
}
