package world

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"
	"time"

	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/protocol"
	"lumbercamp.ai/internal/sim/geom"
	"lumbercamp.ai/internal/sim/tasks"
	"lumbercamp.ai/internal/sim/tuning"
)

func TestNew_RejectsInvalidTuning(t *testing.T) {
	tun := tuning.Defaults()
	tun.TickRateHz = 0
	if _, err := New(WorldConfig{ID: "bad", Tuning: tun}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSelection_IsExclusive(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) { tun.InitialWorkers = 2 })

	countSelected := func() int {
		st := w.State()
		n := 0
		if st.Home.Selected {
			n++
		}
		for _, ws := range st.Workers {
			if ws.Selected {
				n++
			}
		}
		return n
	}

	if !w.SelectEntity(WorkerRef("W1")) {
		t.Fatalf("select W1 rejected")
	}
	w.StepOnce(nil)
	if countSelected() != 1 || w.State().Selection.WorkerID != "W1" {
		t.Fatalf("selection frame: %+v", w.State().Selection)
	}

	w.SelectEntity(HomeRef())
	w.StepOnce(nil)
	if countSelected() != 1 || !w.State().Home.Selected {
		t.Fatalf("home should be the only selection")
	}

	if w.SelectEntity(WorkerRef("W9")) {
		t.Fatalf("unknown worker selected")
	}
	if w.Selection().Kind != EntityHome {
		t.Fatalf("selection changed to %v", w.Selection())
	}
	if w.SelectEntity(NodeRef("N1")) {
		t.Fatalf("nodes are not selectable")
	}

	w.SelectEntity(NoEntity())
	w.StepOnce(nil)
	if countSelected() != 0 || w.State().Selection.Kind != protocol.SelectNone {
		t.Fatalf("expected no selection")
	}
}

func TestEntityAt_PicksByRadius(t *testing.T) {
	w := newTestWorld(t, nil)
	cases := []struct {
		x, y float64
		want EntityRef
	}{
		{200, 10, NodeRef("N1")},
		{-200, 0, HomeRef()},
		{-150, 5, WorkerRef("W1")},
		{0, 0, NoEntity()},
		{-200, 60, NoEntity()},
	}
	for _, tc := range cases {
		if got := w.EntityAt(v(tc.x, tc.y)); got != tc.want {
			t.Fatalf("EntityAt(%v,%v) = %v, want %v", tc.x, tc.y, got, tc.want)
		}
	}
}

func TestCommandAt_DispatchesOnTarget(t *testing.T) {
	w := newTestWorld(t, nil)
	wk := mustWorker(t, w, "W1")

	if w.CommandAt(v(0, 0)) {
		t.Fatalf("command-at without a selected worker should be a no-op")
	}

	w.SelectEntity(WorkerRef("W1"))
	if !w.CommandAt(v(200, 0)) {
		t.Fatalf("command-at node rejected")
	}
	if wk.MoveTask == nil || wk.MoveTask.Purpose != tasks.PurposeHarvest || wk.MoveTask.NodeID != "N1" {
		t.Fatalf("expected harvest approach, got %+v", wk.MoveTask)
	}

	if !w.CommandAt(v(0, 120)) {
		t.Fatalf("command-at ground rejected")
	}
	if wk.MoveTask == nil || wk.MoveTask.Purpose != tasks.PurposeManual || wk.LastNodeID != "" {
		t.Fatalf("expected manual move, got %+v last=%q", wk.MoveTask, wk.LastNodeID)
	}
}

func TestCommandAt_OnAnotherWorkerMoves(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) { tun.InitialWorkers = 2 })
	w.StepOnce(nil)
	w1, w2 := mustWorker(t, w, "W1"), mustWorker(t, w, "W2")

	w.SelectEntity(WorkerRef("W1"))
	if !w.CommandAt(w2.Pos) {
		t.Fatalf("command-at a worker rejected")
	}
	if w.Selection() != WorkerRef("W1") {
		t.Fatalf("selection changed to %v", w.Selection())
	}
	if w1.MoveTask == nil || w1.MoveTask.Purpose != tasks.PurposeManual {
		t.Fatalf("expected manual move, got %+v", w1.MoveTask)
	}
	if d := w1.MoveTask.Target.Dist(w2.Pos); d < 2*w.tun.WorkerRadius-1e-9 {
		t.Fatalf("target %.3f from W2, want >= %v", d, 2*w.tun.WorkerRadius)
	}

	// A click on the selected worker itself is a move in place.
	w.StepOnce(nil)
	if !w.CommandAt(w1.Pos) {
		t.Fatalf("command-at own position rejected")
	}
}

func TestApply_RoutesProtocolCommands(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) { tun.Home.Wood = 10 })
	logger := &recordingTickLogger{}
	w.SetTickLogger(logger)

	_, digest := w.StepOnce([]CommandEnvelope{
		{Source: "test", Ref: "c1", Cmd: protocol.Command{Kind: protocol.CmdSelect, Entity: "W1"}},
		{Source: "test", Ref: "c2", Cmd: protocol.Command{Kind: protocol.CmdMove, WorkerID: "W1", Target: pt(0, 90)}},
		{Source: "test", Ref: "c3", Cmd: protocol.Command{Kind: protocol.CmdMove, WorkerID: "W9", Target: pt(0, 90)}},
		{Source: "test", Ref: "c4", Cmd: cmd(protocol.CmdTrain)},
		{Source: "test", Ref: "c5", Cmd: cmd(protocol.CmdTrain)},
		{Source: "test", Ref: "c6", Cmd: cmd("JUMP")},
	})

	if len(logger.entries) != 1 {
		t.Fatalf("tick log entries = %d", len(logger.entries))
	}
	e := logger.entries[0]
	if e.Tick != 0 || e.Digest != digest {
		t.Fatalf("entry tick=%d digest=%s want %s", e.Tick, e.Digest, digest)
	}
	wantAccepted := []bool{true, true, false, true, false, false}
	if len(e.Commands) != len(wantAccepted) {
		t.Fatalf("recorded %d commands", len(e.Commands))
	}
	for i, rc := range e.Commands {
		if rc.Accepted != wantAccepted[i] {
			t.Fatalf("command %s accepted=%v want %v", rc.Ref, rc.Accepted, wantAccepted[i])
		}
	}
	if len(w.workers) != 2 {
		t.Fatalf("workers = %d", len(w.workers))
	}
	if m := w.Metrics(); m.Totals.CommandsRejected != 3 || m.Totals.WorkersTrained != 1 {
		t.Fatalf("metrics totals: %+v", m.Totals)
	}
}

func TestDeterminism_SameCommandsSameDigest(t *testing.T) {
	mk := func() *World {
		return newTestWorld(t, func(tun *tuning.Tuning) {
			tun.InitialWorkers = 4
			tun.Home.Wood = 20
			fastHarvest(tun)
		})
	}
	w1, w2 := mk(), mk()

	script := map[uint64][]CommandEnvelope{
		0: {
			{Cmd: protocol.Command{Kind: protocol.CmdHarvest, WorkerID: "W1"}},
			{Cmd: protocol.Command{Kind: protocol.CmdHarvest, WorkerID: "W2"}},
			{Cmd: protocol.Command{Kind: protocol.CmdHarvest, WorkerID: "W3"}},
			{Cmd: protocol.Command{Kind: protocol.CmdHarvest, WorkerID: "W4"}},
		},
		5:  {{Cmd: cmd(protocol.CmdTrain)}},
		30: {{Cmd: protocol.Command{Kind: protocol.CmdHarvest, WorkerID: "W5"}}},
		60: {{Cmd: protocol.Command{Kind: protocol.CmdMove, WorkerID: "W2", Target: pt(0, 0)}}},
	}
	for tick := uint64(0); tick < 300; tick++ {
		_, d1 := w1.StepOnce(script[tick])
		_, d2 := w2.StepOnce(script[tick])
		if d1 != d2 {
			t.Fatalf("digest mismatch at tick %d: %s vs %s", tick, d1, d2)
		}
	}
	if w1.home.WoodStored == 20 {
		t.Fatalf("expected deliveries during the run")
	}
}

func TestConservation_RandomCommandStream(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) {
		tun.InitialWorkers = 3
		fastHarvest(tun)
	})
	audit := &recordingAuditLogger{}
	w.SetAuditLogger(audit)
	initial := totalWood(w)

	r := rand.New(rand.NewSource(7))
	kinds := []string{protocol.CmdHarvest, protocol.CmdHarvest, protocol.CmdMove, protocol.CmdDeposit, protocol.CmdTrain, protocol.CmdSelect, protocol.CmdCommandAt}
	for tick := 0; tick < 2000; tick++ {
		var cmds []CommandEnvelope
		if r.Intn(10) == 0 {
			ids := w.Workers()
			c := protocol.Command{Kind: kinds[r.Intn(len(kinds))], WorkerID: ids[r.Intn(len(ids))].ID}
			switch c.Kind {
			case protocol.CmdMove, protocol.CmdCommandAt:
				c.Target = pt(float64(r.Intn(600)-300), float64(r.Intn(600)-300))
			case protocol.CmdSelect:
				c.Entity = c.WorkerID
			}
			cmds = append(cmds, CommandEnvelope{Source: "fuzz", Cmd: c})
		}
		w.StepOnce(cmds)

		if got := totalWood(w); got != initial {
			t.Fatalf("tick %d: total wood %d, want %d", tick, got, initial)
		}
		for _, wk := range w.workers {
			if wk.WoodCarried < 0 || wk.WoodCarried > w.tun.MaxWoodCapacity {
				t.Fatalf("tick %d: %s carries %d", tick, wk.ID, wk.WoodCarried)
			}
		}
	}
	if got, want := audit.count("EXTRACT"), int(w.totals.WoodExtracted); got != want {
		t.Fatalf("audit extracts = %d, totals = %d", got, want)
	}
}

func TestSnapshot_SinkReceivesPeriodicSnapshots(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) { tun.SnapshotEveryTicks = 5 })
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)
	w.StartHarvesting("W1")

	var digestAt5 string
	for i := 0; i < 6; i++ {
		tick, d := w.StepOnce(nil)
		if tick == 5 {
			digestAt5 = d
		}
	}

	select {
	case snap := <-sink:
		if snap.Header.Tick != 5 || snap.Digest != digestAt5 {
			t.Fatalf("snapshot tick=%d digest=%s want %s", snap.Header.Tick, snap.Digest, digestAt5)
		}
		if snap.TotalWood() != w.initialWood {
			t.Fatalf("snapshot wood = %d, want %d", snap.TotalWood(), w.initialWood)
		}
		if len(snap.Workers) != 1 || snap.Workers[0].Move == nil {
			t.Fatalf("snapshot workers: %+v", snap.Workers)
		}
	default:
		t.Fatalf("no snapshot delivered")
	}
}

func TestRun_PublishesStateToViewers(t *testing.T) {
	w := newTestWorld(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	out := make(chan []byte, 2)
	w.JoinViewer() <- ViewerJoin{ID: "v1", Out: out}
	w.Inbox() <- CommandEnvelope{Source: "v1", Cmd: protocol.Command{Kind: protocol.CmdSelect, Entity: "home"}}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case b := <-out:
			var st protocol.StateMsg
			if err := json.Unmarshal(b, &st); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if st.Type != protocol.TypeState {
				t.Fatalf("type = %q", st.Type)
			}
			if st.Home.Selected {
				cancel()
				if err := <-done; err != context.Canceled {
					t.Fatalf("run returned %v", err)
				}
				if w.State() == nil || w.Metrics().Tick == 0 {
					t.Fatalf("frame or metrics not published")
				}
				return
			}
		case <-deadline:
			t.Fatalf("no STATE with home selected")
		}
	}
}

func TestRequestSnapshot_ThroughRunLoop(t *testing.T) {
	w := newTestWorld(t, func(tun *tuning.Tuning) { tun.SnapshotEveryTicks = 0 })
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(ctx, 3*time.Second)
	defer reqCancel()
	tick, err := w.RequestSnapshot(reqCtx)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	select {
	case snap := <-sink:
		if snap.Header.Tick != tick {
			t.Fatalf("snapshot tick=%d, reply tick=%d", snap.Header.Tick, tick)
		}
		if snap.TotalWood() != w.initialWood {
			t.Fatalf("snapshot wood = %d, want %d", snap.TotalWood(), w.initialWood)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no snapshot delivered")
	}
}

func TestInvariants_CorruptStatePanics(t *testing.T) {
	slot := geom.V(235, 0)
	cases := []struct {
		name    string
		corrupt func(w *World)
		want    string
	}{
		{
			name:    "capacity",
			corrupt: func(w *World) { w.workers["W1"].WoodCarried = w.tun.MaxWoodCapacity + 1 },
			want:    "worker W1 carries 6 (capacity 5)",
		},
		{
			name:    "negative node wood",
			corrupt: func(w *World) { w.nodes["N1"].Wood = -1 },
			want:    "node N1 wood -1 < 0",
		},
		{
			name: "shared slot",
			corrupt: func(w *World) {
				for _, id := range []string{"W1", "W2"} {
					wk := w.workers[id]
					wk.Pos = slot
					wk.HarvestTask = &tasks.HarvestTask{TaskID: "T-" + id, Kind: tasks.KindHarvest, NodeID: "N1", Slot: slot}
				}
			},
			want: "workers W1 and W2 share slot [235 0] on node N1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newTestWorld(t, func(tun *tuning.Tuning) { tun.InitialWorkers = 2 })
			w.StepOnce(nil)
			tc.corrupt(w)

			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("expected panic")
				}
				msg, _ := r.(string)
				if !strings.Contains(msg, "invariant violated") || !strings.Contains(msg, tc.want) {
					t.Fatalf("panic = %v, want %q", r, tc.want)
				}
			}()
			w.StepOnce(nil)
		})
	}
}

func TestRun_JoinAckAndAbandonedJoin(t *testing.T) {
	w := newTestWorld(t, nil)

	// Queued before the loop starts; the caller gave up on the first one.
	gone := make(chan struct{})
	close(gone)
	stale := ViewerJoin{ID: "stale", Out: make(chan []byte, 1), Ack: make(chan struct{}), Done: gone}
	w.JoinViewer() <- stale
	live := ViewerJoin{ID: "live", Out: make(chan []byte, 1), Ack: make(chan struct{}), Done: make(chan struct{})}
	w.JoinViewer() <- live

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-live.Ack:
	case <-time.After(3 * time.Second):
		t.Fatalf("join not acknowledged")
	}
	cancel()
	<-done

	select {
	case <-stale.Ack:
		t.Fatalf("abandoned join was acknowledged")
	default:
	}
	if _, ok := w.viewers["stale"]; ok {
		t.Fatalf("abandoned viewer registered")
	}
	if _, ok := w.viewers["live"]; !ok {
		t.Fatalf("live viewer missing")
	}
}
