package main

import (
	"math"
	"sort"

	"lumbercamp.ai/internal/protocol"
)

// planner issues camp commands from STATE frames. It remembers what it asked
// each worker to do so a command in flight is not repeated every tick.
type planner struct {
	maxWorkers int
	// retryTicks is how long a worker may stay idle after a command before it
	// is asked again.
	retryTicks uint64

	issued map[string]uint64 // worker id -> tick of last command
}

func newPlanner(maxWorkers int, retryTicks uint64) *planner {
	return &planner{maxWorkers: maxWorkers, retryTicks: retryTicks, issued: map[string]uint64{}}
}

// Next returns the commands to send for st, in a stable order.
func (p *planner) Next(st *protocol.StateMsg) []protocol.Command {
	if st == nil {
		return nil
	}
	var out []protocol.Command

	workers := append([]protocol.WorkerState(nil), st.Workers...)
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })

	for _, wk := range workers {
		if wk.State != protocol.WorkerIdle {
			delete(p.issued, wk.ID)
			continue
		}
		if at, ok := p.issued[wk.ID]; ok && st.Tick < at+p.retryTicks {
			continue
		}
		if wk.WoodCarried > 0 {
			out = append(out, protocol.Command{Kind: protocol.CmdDeposit, WorkerID: wk.ID})
			p.issued[wk.ID] = st.Tick
			continue
		}
		node, ok := nearestNode(wk.Pos, st.Nodes)
		if !ok {
			continue
		}
		out = append(out, protocol.Command{Kind: protocol.CmdHarvest, WorkerID: wk.ID, NodeID: node})
		p.issued[wk.ID] = st.Tick
	}

	if st.Home.CanTrain && len(st.Workers) < p.maxWorkers && woodLeft(st) > 0 {
		out = append(out, protocol.Command{Kind: protocol.CmdTrain})
	}
	return out
}

func nearestNode(pos [2]float64, nodes []protocol.NodeState) (string, bool) {
	best, bestD := "", math.Inf(1)
	for _, n := range nodes {
		if n.Wood <= 0 {
			continue
		}
		d := math.Hypot(n.Pos[0]-pos[0], n.Pos[1]-pos[1])
		if d < bestD || (d == bestD && n.ID < best) {
			best, bestD = n.ID, d
		}
	}
	return best, best != ""
}

func woodLeft(st *protocol.StateMsg) int {
	n := 0
	for _, nd := range st.Nodes {
		n += nd.Wood
	}
	return n
}

// depleted reports whether nothing is left to harvest or carry home.
func depleted(st *protocol.StateMsg) bool {
	if woodLeft(st) > 0 {
		return false
	}
	for _, wk := range st.Workers {
		if wk.WoodCarried > 0 || wk.State != protocol.WorkerIdle {
			return false
		}
	}
	return true
}
