package world

import "fmt"

// checkInvariants panics on states the rules can never produce. A panic here
// is a bug in placement or the tick systems, not bad input.
func (w *World) checkInvariants(nowTick uint64) {
	fail := func(format string, args ...any) {
		panic(fmt.Sprintf("world %s tick %d: invariant violated: %s", w.cfg.ID, nowTick, fmt.Sprintf(format, args...)))
	}

	if w.home.WoodStored < 0 {
		fail("home wood stored %d < 0", w.home.WoodStored)
	}
	total := w.home.WoodStored + w.home.WoodSpent

	for _, id := range w.nodeOrder {
		n := w.nodes[id]
		if n.Wood < 0 {
			fail("node %s wood %d < 0", n.ID, n.Wood)
		}
		if n.Progress < 0 || n.Progress >= 1 {
			fail("node %s progress %v outside [0,1)", n.ID, n.Progress)
		}
		total += n.Wood
	}

	slots := map[string]map[[2]float64]string{}
	for _, wk := range w.sortedWorkers() {
		if wk.WoodCarried < 0 || wk.WoodCarried > w.tun.MaxWoodCapacity {
			fail("worker %s carries %d (capacity %d)", wk.ID, wk.WoodCarried, w.tun.MaxWoodCapacity)
		}
		if wk.MoveTask != nil && wk.HarvestTask != nil {
			fail("worker %s is both moving and harvesting", wk.ID)
		}
		if ht := wk.HarvestTask; ht != nil {
			n := w.nodes[ht.NodeID]
			if n == nil {
				fail("worker %s harvests unknown node %s", wk.ID, ht.NodeID)
			}
			if n.Exhausted() {
				fail("worker %s harvests exhausted node %s", wk.ID, ht.NodeID)
			}
			key := ht.Slot.Array()
			if slots[ht.NodeID] == nil {
				slots[ht.NodeID] = map[[2]float64]string{}
			}
			if other, ok := slots[ht.NodeID][key]; ok {
				fail("workers %s and %s share slot %v on node %s", other, wk.ID, key, ht.NodeID)
			}
			slots[ht.NodeID][key] = wk.ID
		}
		total += wk.WoodCarried
	}

	if w.selection.Kind == EntityWorker && w.workers[w.selection.ID] == nil {
		fail("selection names missing worker %s", w.selection.ID)
	}
	if total != w.initialWood {
		fail("wood not conserved: %d, started with %d", total, w.initialWood)
	}
}
