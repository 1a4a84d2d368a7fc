package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lumbercamp.ai/internal/sim/tuning"
)

// RunMetaFile sits at the top of every run directory.
const RunMetaFile = "run.json"

// RunMeta is what a replay needs to rebuild the world a run started from.
type RunMeta struct {
	RunID           string        `json:"run_id"`
	WorldID         string        `json:"world_id"`
	ProtocolVersion string        `json:"protocol_version"`
	StartedAt       string        `json:"started_at"`
	Tuning          tuning.Tuning `json:"tuning"`
}

func WriteRunMeta(runDir string, meta RunMeta) error {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(runDir, RunMetaFile), b, 0o644)
}

func ReadRunMeta(runDir string) (RunMeta, error) {
	var meta RunMeta
	b, err := os.ReadFile(filepath.Join(runDir, RunMetaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("%s: %w", RunMetaFile, err)
	}
	if err := meta.Tuning.Validate(); err != nil {
		return meta, fmt.Errorf("%s: %w", RunMetaFile, err)
	}
	return meta, nil
}
