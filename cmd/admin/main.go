package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lumbercamp.ai/internal/persistence/archive"
	"lumbercamp.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "audits":
			auditsCmd(os.Args[2:])
			return
		case "digest":
			digestCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type runRow struct {
	RunID     string `json:"run_id"`
	WorldID   string `json:"world_id"`
	StartedAt string `json:"started_at"`
	Seed      int64  `json:"seed"`
	Snapshots int    `json:"snapshots"`
	Depleted  bool   `json:"depleted"`
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "camp", "world id")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, *worldID)
	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	rows := make([]runRow, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(base, e.Name())
		meta, err := archive.ReadRunMeta(runDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "skip %s: %v\n", e.Name(), err)
			continue
		}
		_, depletedErr := os.Stat(filepath.Join(runDir, "archives", "depleted", "meta.json"))
		rows = append(rows, runRow{
			RunID:     meta.RunID,
			WorldID:   meta.WorldID,
			StartedAt: meta.StartedAt,
			Seed:      meta.Tuning.Seed,
			Snapshots: len(snapshotTicks(runDir)),
			Depleted:  depletedErr == nil,
		})
	}
	// RFC3339 timestamps sort chronologically as strings.
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartedAt < rows[j].StartedAt })
	for _, r := range rows {
		printJSON(r)
	}
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	runDir := fs.String("run_dir", "", "run directory (uses its latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; overrides -run_dir)")
	workers := fs.Bool("workers", false, "print one line per worker")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" && strings.TrimSpace(*runDir) != "" {
		path = latestSnapshot(*runDir)
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or -run_dir")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	remaining := 0
	for _, n := range snap.Nodes {
		remaining += n.Wood
	}
	printJSON(struct {
		Path          string `json:"path"`
		WorldID       string `json:"world_id"`
		Tick          uint64 `json:"tick"`
		Seed          int64  `json:"seed"`
		Workers       int    `json:"workers"`
		WoodStored    int    `json:"wood_stored"`
		WoodSpent     int    `json:"wood_spent"`
		WoodRemaining int    `json:"wood_remaining"`
		TotalWood     int    `json:"total_wood"`
		InitialWood   int    `json:"initial_wood"`
		PendingEvents int    `json:"pending_events"`
		Depleted      bool   `json:"depleted"`
		Digest        string `json:"digest"`
	}{
		Path:          path,
		WorldID:       snap.Header.WorldID,
		Tick:          snap.Header.Tick,
		Seed:          snap.Seed,
		Workers:       len(snap.Workers),
		WoodStored:    snap.Home.WoodStored,
		WoodSpent:     snap.Home.WoodSpent,
		WoodRemaining: remaining,
		TotalWood:     snap.TotalWood(),
		InitialWood:   snap.InitialWood,
		PendingEvents: len(snap.Events),
		Depleted:      archive.Depleted(snap),
		Digest:        snap.Digest,
	})
	if *workers {
		for _, w := range snap.Workers {
			printJSON(w)
		}
	}
	if snap.TotalWood() != snap.InitialWood {
		fmt.Fprintf(os.Stderr, "conservation broken: total=%d initial=%d\n", snap.TotalWood(), snap.InitialWood)
		os.Exit(1)
	}
}

func snapshotTicks(runDir string) []uint64 {
	ents, err := os.ReadDir(filepath.Join(runDir, "snapshots"))
	if err != nil {
		return nil
	}
	var out []uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, tick)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func latestSnapshot(runDir string) string {
	ticks := snapshotTicks(runDir)
	if len(ticks) == 0 {
		return ""
	}
	return snapshot.PathFor(filepath.Join(runDir, "snapshots"), ticks[len(ticks)-1])
}
