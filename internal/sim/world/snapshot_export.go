package world

import (
	"lumbercamp.ai/internal/persistence/snapshot"
)

// ExportSnapshot copies the current state. Call it from the world goroutine.
func (w *World) ExportSnapshot(nowTick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: 1,
			WorldID: w.cfg.ID,
			Tick:    nowTick,
		},
		Seed:               w.tun.Seed,
		TickRate:           w.tun.TickRateHz,
		SnapshotEveryTicks: w.tun.SnapshotEveryTicks,
		Home: snapshot.HomeV1{
			Pos:        w.home.Pos.Array(),
			WoodStored: w.home.WoodStored,
			WoodSpent:  w.home.WoodSpent,
		},
		Selection: snapshot.SelectionV1{
			Kind:     w.selection.Kind.String(),
			WorkerID: w.selection.ID,
		},
		NextWorkerNum: w.nextWorkerNum,
		NextTaskNum:   w.nextTaskNum,
		NextEventSeq:  w.events.NextSeq(),
		InitialWood:   w.initialWood,
		Digest:        w.stateDigest(nowTick),
	}

	harvesters := map[string][]string{}
	for _, wk := range w.sortedWorkers() {
		wv := snapshot.WorkerV1{
			ID:          wk.ID,
			Pos:         wk.Pos.Array(),
			WoodCarried: wk.WoodCarried,
			LastNodeID:  wk.LastNodeID,
			CmdGen:      wk.CmdGen,
		}
		if mt := wk.MoveTask; mt != nil {
			wv.Move = &snapshot.MoveTaskV1{
				TaskID:      mt.TaskID,
				Purpose:     string(mt.Purpose),
				Target:      mt.Target.Array(),
				StartPos:    mt.StartPos.Array(),
				StartedTick: mt.StartedTick,
				NodeID:      mt.NodeID,
			}
		}
		if ht := wk.HarvestTask; ht != nil {
			wv.Harvest = &snapshot.HarvestTaskV1{
				TaskID:      ht.TaskID,
				NodeID:      ht.NodeID,
				StartedTick: ht.StartedTick,
				Slot:        ht.Slot.Array(),
				Extracted:   ht.Extracted,
			}
			harvesters[ht.NodeID] = append(harvesters[ht.NodeID], wk.ID)
		}
		snap.Workers = append(snap.Workers, wv)
	}

	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		snap.Nodes = append(snap.Nodes, snapshot.NodeV1{
			ID:              n.ID,
			Pos:             n.Pos.Array(),
			Wood:            n.Wood,
			HarvestProgress: n.Progress,
			Harvesters:      harvesters[n.ID],
		})
	}

	for _, e := range w.events.Pending() {
		snap.Events = append(snap.Events, snapshot.EventV1{
			Seq:      e.Seq,
			FireTick: e.FireTick,
			Kind:     string(e.Kind),
			WorkerID: e.WorkerID,
			NodeID:   e.NodeID,
			Gen:      e.Gen,
		})
	}
	return snap
}
