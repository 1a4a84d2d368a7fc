package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lumbercamp.ai/internal/persistence/snapshot"
)

type DepletionMeta struct {
	EndTick     uint64 `json:"end_tick"`
	Seed        int64  `json:"seed"`
	Snapshot    string `json:"snapshot"`
	CreatedAt   string `json:"created_at"`
	Workers     int    `json:"workers"`
	WoodStored  int    `json:"wood_stored"`
	WoodSpent   int    `json:"wood_spent"`
	InitialWood int    `json:"initial_wood"`
}

// Depleted reports whether every node is empty and no worker carries wood:
// the camp can make no further progress.
func Depleted(snap snapshot.SnapshotV1) bool {
	for _, n := range snap.Nodes {
		if n.Wood > 0 {
			return false
		}
	}
	for _, w := range snap.Workers {
		if w.WoodCarried > 0 {
			return false
		}
	}
	return true
}

// ArchiveDepletedSnapshot copies the first snapshot taken after the camp is
// depleted into `runDir/archives/depleted/`. Later calls are no-ops.
func ArchiveDepletedSnapshot(runDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath string, archived bool, err error) {
	if !Depleted(snap) {
		return "", false, nil
	}
	archiveDir := filepath.Join(runDir, "archives", "depleted")
	if _, err := os.Stat(filepath.Join(archiveDir, "meta.json")); err == nil {
		return "", false, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", false, fmt.Errorf("copy %s: %w", snapshotPath, err)
	}

	meta := DepletionMeta{
		EndTick:     snap.Header.Tick,
		Seed:        snap.Seed,
		Snapshot:    filepath.Base(dst),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		Workers:     len(snap.Workers),
		WoodStored:  snap.Home.WoodStored,
		WoodSpent:   snap.Home.WoodSpent,
		InitialWood: snap.InitialWood,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644); err != nil {
		return "", false, err
	}
	return dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
