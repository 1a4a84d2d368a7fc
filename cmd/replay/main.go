package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lumbercamp.ai/internal/persistence/snapshot"
)

func main() {
	var (
		runDir   = flag.String("run_dir", "", "run directory containing run.json and events/")
		dataDir  = flag.String("data", "./data", "runtime data directory (with -world and -run)")
		worldID  = flag.String("world", "camp", "world id (with -run)")
		runID    = flag.String("run", "", "run id (with -data and -world)")
		snapPath = flag.String("snapshot", "", "snapshot to check against the replayed digest (optional)")
		fromTick = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	dir := strings.TrimSpace(*runDir)
	if dir == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run_dir or -run")
			os.Exit(2)
		}
		dir = filepath.Join(*dataDir, *worldID, *runID)
	}

	keep := map[uint64]bool{}
	var snap snapshot.SnapshotV1
	if p := strings.TrimSpace(*snapPath); p != "" {
		var err error
		snap, err = snapshot.ReadSnapshot(p)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		keep[snap.Header.Tick] = true
		fmt.Printf("snapshot v%d world=%s tick=%d seed=%d workers=%d nodes=%d stored=%d total=%d/%d\n",
			snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed,
			len(snap.Workers), len(snap.Nodes), snap.Home.WoodStored, snap.TotalWood(), snap.InitialWood)
	}

	res, err := replayRun(dir, *fromTick, *toTick, keep)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}

	if len(keep) > 0 {
		got, ok := res.Digests[snap.Header.Tick]
		if !ok {
			fmt.Fprintf(os.Stderr, "snapshot tick %d not reached (last replayed tick %d)\n", snap.Header.Tick, res.LastTick)
			os.Exit(1)
		}
		if got != snap.Digest {
			fmt.Fprintf(os.Stderr, "snapshot digest mismatch at tick %d: replay=%s snapshot=%s\n", snap.Header.Tick, got, snap.Digest)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: run=%s world=%s checked=%d ticks commands=%d last_tick=%d\n",
		res.Meta.RunID, res.Meta.WorldID, res.Checked, res.Commands, res.LastTick)
}
