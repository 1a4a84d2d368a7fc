package worldtest

import (
	"fmt"
	"testing"

	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/tuning"
	world "lumbercamp.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Step() issues protocol commands via StepOnce()
// - State() is the STATE frame published after the last step
// - Snapshot() exports the state the last step left behind
//
// It avoids touching world internals so tests can live outside the world package.
type Harness struct {
	T *testing.T
	W *world.World

	digests []string
	nextRef int
}

func NewHarness(t *testing.T, mutate func(*tuning.Tuning)) *Harness {
	t.Helper()
	tun := tuning.Defaults()
	if mutate != nil {
		mutate(&tun)
	}
	w, err := world.New(world.WorldConfig{ID: "test", Tuning: tun})
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return NewHarnessWithWorld(t, w)
}

// NewHarnessWithWorld is like NewHarness, but uses an already-constructed world instance.
func NewHarnessWithWorld(t *testing.T, w *world.World) *Harness {
	t.Helper()
	if w == nil {
		t.Fatalf("NewHarnessWithWorld: nil world")
	}
	return &Harness{T: t, W: w}
}

// Step applies cmds in order at the next tick and returns the new frame.
func (h *Harness) Step(cmds ...protocol.Command) *protocol.StateMsg {
	h.T.Helper()
	envs := make([]world.CommandEnvelope, 0, len(cmds))
	for _, c := range cmds {
		h.nextRef++
		envs = append(envs, world.CommandEnvelope{Source: "harness", Ref: fmt.Sprintf("h%d", h.nextRef), Cmd: c})
	}
	_, digest := h.W.StepOnce(envs)
	h.digests = append(h.digests, digest)
	return h.State()
}

func (h *Harness) StepN(n int) *protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.Step()
	}
	return h.State()
}

// StepUntil steps until cond holds for the published frame, failing the test
// after maxTicks.
func (h *Harness) StepUntil(maxTicks int, what string, cond func(*protocol.StateMsg) bool) *protocol.StateMsg {
	h.T.Helper()
	for i := 0; i < maxTicks; i++ {
		if st := h.Step(); cond(st) {
			return st
		}
	}
	h.T.Fatalf("%s: not reached within %d ticks (tick=%d)", what, maxTicks, h.W.CurrentTick())
	return nil
}

func (h *Harness) State() *protocol.StateMsg {
	h.T.Helper()
	st := h.W.State()
	if st == nil {
		h.T.Fatalf("no state frame published")
	}
	return st
}

// Digests lists the digest of every step taken so far.
func (h *Harness) Digests() []string { return h.digests }

func (h *Harness) Worker(id string) protocol.WorkerState {
	h.T.Helper()
	for _, wk := range h.State().Workers {
		if wk.ID == id {
			return wk
		}
	}
	h.T.Fatalf("unknown worker %q", id)
	return protocol.WorkerState{}
}

func (h *Harness) Node(id string) protocol.NodeState {
	h.T.Helper()
	for _, n := range h.State().Nodes {
		if n.ID == id {
			return n
		}
	}
	h.T.Fatalf("unknown node %q", id)
	return protocol.NodeState{}
}

// Snapshot exports the state left by the last step, at that step's tick.
func (h *Harness) Snapshot() snapshot.SnapshotV1 {
	h.T.Helper()
	cur := h.W.CurrentTick()
	if cur == 0 {
		return h.W.ExportSnapshot(0)
	}
	return h.W.ExportSnapshot(cur - 1)
}

// TotalWood sums every place wood can be in a frame.
func TotalWood(st *protocol.StateMsg) int {
	n := st.Home.WoodStored + st.Home.WoodSpent
	for _, nd := range st.Nodes {
		n += nd.Wood
	}
	for _, wk := range st.Workers {
		n += wk.WoodCarried
	}
	return n
}

func Select(entity string) protocol.Command {
	return protocol.Command{Kind: protocol.CmdSelect, Entity: entity}
}

func Move(workerID string, x, y float64) protocol.Command {
	return protocol.Command{Kind: protocol.CmdMove, WorkerID: workerID, Target: &[2]float64{x, y}}
}

func Harvest(workerID, nodeID string) protocol.Command {
	return protocol.Command{Kind: protocol.CmdHarvest, WorkerID: workerID, NodeID: nodeID}
}

func Deposit(workerID string) protocol.Command {
	return protocol.Command{Kind: protocol.CmdDeposit, WorkerID: workerID}
}

func Train() protocol.Command { return protocol.Command{Kind: protocol.CmdTrain} }

func At(x, y float64) protocol.Command {
	return protocol.Command{Kind: protocol.CmdCommandAt, Target: &[2]float64{x, y}}
}
