package world

import (
	"encoding/json"

	"lumbercamp.ai/internal/protocol"
)

// Read accessors return copies. Like commands, they must be called from the
// goroutine that steps the world; other goroutines use State.

func (w *World) Worker(id string) (Worker, bool) {
	wk := w.workers[id]
	if wk == nil {
		return Worker{}, false
	}
	return copyWorker(wk), true
}

// Workers returns every worker sorted by id.
func (w *World) Workers() []Worker {
	out := make([]Worker, 0, len(w.workers))
	for _, wk := range w.sortedWorkers() {
		out = append(out, copyWorker(wk))
	}
	return out
}

func (w *World) Node(id string) (ResourceNode, bool) {
	n := w.nodes[id]
	if n == nil {
		return ResourceNode{}, false
	}
	return *n, true
}

// Nodes returns every resource node sorted by id.
func (w *World) Nodes() []ResourceNode {
	out := make([]ResourceNode, 0, len(w.nodeOrder))
	for _, id := range w.nodeOrder {
		out = append(out, *w.nodes[id])
	}
	return out
}

func (w *World) Home() HomeBase { return *w.home }

func copyWorker(wk *Worker) Worker {
	cp := *wk
	if wk.MoveTask != nil {
		mt := *wk.MoveTask
		cp.MoveTask = &mt
	}
	if wk.HarvestTask != nil {
		ht := *wk.HarvestTask
		cp.HarvestTask = &ht
	}
	return cp
}

// State returns the frame published after the last completed tick. It is
// safe to call from any goroutine; the frame must not be modified.
func (w *World) State() *protocol.StateMsg { return w.frame.Load() }

func (w *World) buildState(nowTick uint64) *protocol.StateMsg {
	dur := w.tun.MovementTicks()
	msg := &protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		WorldID:         w.cfg.ID,
		Tick:            nowTick,
		Workers:         make([]protocol.WorkerState, 0, len(w.workers)),
		Nodes:           make([]protocol.NodeState, 0, len(w.nodes)),
		Home: protocol.HomeState{
			Pos:        w.home.Pos.Array(),
			WoodStored: w.home.WoodStored,
			WoodSpent:  w.home.WoodSpent,
			Selected:   w.selection.Kind == EntityHome,
			CanTrain:   w.home.WoodStored >= w.tun.WorkerCost,
		},
		Selection: protocol.SelectionState{Kind: protocol.SelectNone},
	}
	switch w.selection.Kind {
	case EntityHome:
		msg.Selection.Kind = protocol.SelectHome
	case EntityWorker:
		msg.Selection = protocol.SelectionState{Kind: protocol.SelectWorker, WorkerID: w.selection.ID}
	}

	harvesters := map[string]int{}
	for _, wk := range w.sortedWorkers() {
		ws := protocol.WorkerState{
			ID:          wk.ID,
			Pos:         wk.Pos.Array(),
			WoodCarried: wk.WoodCarried,
			State:       wk.State(),
			Selected:    w.selection.Kind == EntityWorker && w.selection.ID == wk.ID,
			LastNodeID:  wk.LastNodeID,
		}
		if mt := wk.MoveTask; mt != nil {
			t := mt.Target.Array()
			ws.Target = &t
			ws.Purpose = string(mt.Purpose)
			ws.NodeID = mt.NodeID
			ws.MoveProgress = mt.Progress(nowTick, dur)
		}
		if ht := wk.HarvestTask; ht != nil {
			ws.NodeID = ht.NodeID
			harvesters[ht.NodeID]++
		}
		msg.Workers = append(msg.Workers, ws)
	}
	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		msg.Nodes = append(msg.Nodes, protocol.NodeState{
			ID:              n.ID,
			Pos:             n.Pos.Array(),
			Wood:            n.Wood,
			HarvestProgress: n.Progress,
			Harvesters:      harvesters[n.ID],
		})
	}
	return msg
}

// publish swaps in a fresh frame and pushes it to attached viewers.
func (w *World) publish(nowTick uint64) {
	msg := w.buildState(nowTick)
	w.frame.Store(msg)
	if len(w.viewers) == 0 {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		w.log.WithError(err).Error("marshal state")
		return
	}
	for _, out := range w.viewers {
		sendLatest(out, b)
	}
}
