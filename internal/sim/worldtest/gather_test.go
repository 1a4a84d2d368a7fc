package worldtest

import (
	"testing"

	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/tuning"
)

func fastHarvest(tun *tuning.Tuning) { tun.HarvestRatePerSec = float64(tun.TickRateHz) }

func TestGather_ClickLoopFundsATrainedWorker(t *testing.T) {
	h := NewHarness(t, fastHarvest)
	initial := TotalWood(h.State())
	if initial != 100 {
		t.Fatalf("initial wood=%d want 100", initial)
	}

	st := h.Step(Select("W1"), At(200, 0))
	if st.Selection.Kind != protocol.SelectWorker || st.Selection.WorkerID != "W1" {
		t.Fatalf("selection=%+v", st.Selection)
	}
	if wk := h.Worker("W1"); wk.State != protocol.WorkerMoving || wk.Purpose != "HARVEST" {
		t.Fatalf("expected harvest-bound move, got %+v", wk)
	}

	sawHarvesting := false
	st = h.StepUntil(1000, "ten wood stored", func(st *protocol.StateMsg) bool {
		if got := TotalWood(st); got != initial {
			t.Fatalf("tick %d: total wood %d, want %d", st.Tick, got, initial)
		}
		for _, wk := range st.Workers {
			if wk.WoodCarried > 5 {
				t.Fatalf("tick %d: %s carries %d", st.Tick, wk.ID, wk.WoodCarried)
			}
			if wk.State == protocol.WorkerHarvesting {
				sawHarvesting = true
			}
		}
		return st.Home.WoodStored >= 10
	})
	if !sawHarvesting {
		t.Fatalf("worker never reported HARVESTING")
	}
	if !st.Home.CanTrain {
		t.Fatalf("can_train=false with %d stored", st.Home.WoodStored)
	}

	stored := st.Home.WoodStored
	st = h.Step(Train())
	if len(st.Workers) != 2 {
		t.Fatalf("workers=%d want 2", len(st.Workers))
	}
	if st.Home.WoodSpent != 10 {
		t.Fatalf("spent=%d want 10", st.Home.WoodSpent)
	}
	// W1 may deposit on the training tick too.
	if st.Home.WoodStored < stored-10 {
		t.Fatalf("stored=%d, want at least %d", st.Home.WoodStored, stored-10)
	}
	if TotalWood(st) != initial {
		t.Fatalf("total wood %d after train", TotalWood(st))
	}
}

func TestGather_CampRunsDry(t *testing.T) {
	h := NewHarness(t, func(tun *tuning.Tuning) {
		fastHarvest(tun)
		tun.Nodes = []tuning.NodeDef{{ID: "N1", Pos: [2]float64{100, 0}, Wood: 12}}
	})
	h.Step(Harvest("W1", "N1"))

	st := h.StepUntil(2000, "node exhausted", func(st *protocol.StateMsg) bool {
		return st.Nodes[0].Wood == 0
	})
	if st.Nodes[0].Harvesters != 0 {
		t.Fatalf("harvesters on empty node: %d", st.Nodes[0].Harvesters)
	}

	// Released harvesters go idle and keep what they carry.
	wk := h.Worker("W1")
	if wk.State != protocol.WorkerIdle || wk.LastNodeID != "" {
		t.Fatalf("worker not released: %+v", wk)
	}
	if wk.WoodCarried+st.Home.WoodStored != 12 {
		t.Fatalf("carried=%d stored=%d", wk.WoodCarried, st.Home.WoodStored)
	}

	// Harvest requests against an empty node are no-ops.
	h.Step(Harvest("W1", "N1"))
	if wk := h.Worker("W1"); wk.State != protocol.WorkerIdle {
		t.Fatalf("harvest on empty node changed state: %+v", wk)
	}

	if wk.WoodCarried > 0 {
		h.Step(Deposit("W1"))
		h.StepUntil(100, "leftover wood deposited", func(st *protocol.StateMsg) bool {
			return st.Home.WoodStored == 12
		})
	}
	st = h.StepN(20)
	if wk := h.Worker("W1"); wk.State != protocol.WorkerIdle || wk.WoodCarried != 0 {
		t.Fatalf("worker not settled: %+v", wk)
	}
	if TotalWood(st) != 12 {
		t.Fatalf("total wood %d", TotalWood(st))
	}
}
