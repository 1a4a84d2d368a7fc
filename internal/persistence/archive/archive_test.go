package archive

import (
	"os"
	"path/filepath"
	"testing"

	"lumbercamp.ai/internal/persistence/snapshot"
	"lumbercamp.ai/internal/sim/tuning"
)

func TestArchiveDepletedSnapshot_CopiesOnce(t *testing.T) {
	runDir := t.TempDir()
	src := filepath.Join(runDir, "snapshots", "99.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir snapshots: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	live := snapshot.SnapshotV1{
		Header:  snapshot.Header{Version: 1, Tick: 50},
		Nodes:   []snapshot.NodeV1{{ID: "N1", Wood: 3}},
		Workers: []snapshot.WorkerV1{{ID: "W1"}},
	}
	if _, ok, err := ArchiveDepletedSnapshot(runDir, src, live); ok || err != nil {
		t.Fatalf("live camp archived: ok=%v err=%v", ok, err)
	}

	carrying := live
	carrying.Nodes = []snapshot.NodeV1{{ID: "N1"}}
	carrying.Workers = []snapshot.WorkerV1{{ID: "W1", WoodCarried: 2}}
	if Depleted(carrying) {
		t.Fatalf("carried wood should keep the camp live")
	}

	done := snapshot.SnapshotV1{
		Header:      snapshot.Header{Version: 1, Tick: 99},
		Seed:        42,
		Home:        snapshot.HomeV1{WoodStored: 80, WoodSpent: 20},
		Nodes:       []snapshot.NodeV1{{ID: "N1"}},
		Workers:     []snapshot.WorkerV1{{ID: "W1"}, {ID: "W2"}, {ID: "W3"}},
		InitialWood: 100,
	}
	archivedPath, ok, err := ArchiveDepletedSnapshot(runDir, src, done)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", got, want)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(archivedPath), "meta.json")); err != nil {
		t.Fatalf("expected meta.json to exist: %v", err)
	}

	if _, ok, err := ArchiveDepletedSnapshot(runDir, src, done); ok || err != nil {
		t.Fatalf("second archive: ok=%v err=%v", ok, err)
	}
}

func TestRunMeta_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "camp", "run-1")
	tun := tuning.Defaults()
	tun.Seed = 7
	meta := RunMeta{RunID: "run-1", WorldID: "camp", ProtocolVersion: "1.0", StartedAt: "2026-01-01T00:00:00Z", Tuning: tun}
	if err := WriteRunMeta(dir, meta); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadRunMeta(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RunID != "run-1" || got.Tuning.Seed != 7 || len(got.Tuning.Nodes) != len(tun.Nodes) {
		t.Fatalf("meta mismatch: %+v", got)
	}

	// Invalid tuning in run.json is rejected.
	bad := meta
	bad.Tuning.TickRateHz = 0
	if err := WriteRunMeta(dir, bad); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadRunMeta(dir); err == nil {
		t.Fatalf("expected validation error")
	}
}
