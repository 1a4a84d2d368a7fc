package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a full point-in-time copy of the camp, used for inspection
// and for checking replays against a known state.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed               int64 `json:"seed"`
	TickRate           int   `json:"tick_rate_hz"`
	SnapshotEveryTicks int   `json:"snapshot_every_ticks,omitempty"`

	Home    HomeV1     `json:"home"`
	Nodes   []NodeV1   `json:"nodes"`
	Workers []WorkerV1 `json:"workers"`
	Events  []EventV1  `json:"events,omitempty"`

	Selection SelectionV1 `json:"selection"`

	NextWorkerNum uint64 `json:"next_worker_num"`
	NextTaskNum   uint64 `json:"next_task_num"`
	NextEventSeq  uint64 `json:"next_event_seq"`

	// Totals used by the conservation check.
	InitialWood int `json:"initial_wood"`

	Digest string `json:"digest"`
}

type HomeV1 struct {
	Pos        [2]float64 `json:"pos"`
	WoodStored int        `json:"wood_stored"`
	WoodSpent  int        `json:"wood_spent"`
}

type NodeV1 struct {
	ID              string     `json:"id"`
	Pos             [2]float64 `json:"pos"`
	Wood            int        `json:"wood"`
	HarvestProgress float64    `json:"harvest_progress"`
	Harvesters      []string   `json:"harvesters,omitempty"`
}

type WorkerV1 struct {
	ID          string     `json:"id"`
	Pos         [2]float64 `json:"pos"`
	WoodCarried int        `json:"wood_carried"`
	LastNodeID  string     `json:"last_node_id,omitempty"`
	CmdGen      uint64     `json:"cmd_gen"`

	Move    *MoveTaskV1    `json:"move,omitempty"`
	Harvest *HarvestTaskV1 `json:"harvest,omitempty"`
}

type MoveTaskV1 struct {
	TaskID      string     `json:"task_id"`
	Purpose     string     `json:"purpose"`
	Target      [2]float64 `json:"target"`
	StartPos    [2]float64 `json:"start_pos"`
	StartedTick uint64     `json:"started_tick"`
	NodeID      string     `json:"node_id,omitempty"`
}

type HarvestTaskV1 struct {
	TaskID      string     `json:"task_id"`
	NodeID      string     `json:"node_id"`
	StartedTick uint64     `json:"started_tick"`
	Slot        [2]float64 `json:"slot"`
	Extracted   int        `json:"extracted"`
}

type EventV1 struct {
	Seq      uint64 `json:"seq"`
	FireTick uint64 `json:"fire_tick"`
	Kind     string `json:"kind"`
	WorkerID string `json:"worker_id"`
	NodeID   string `json:"node_id,omitempty"`
	Gen      uint64 `json:"gen"`
}

type SelectionV1 struct {
	Kind     string `json:"kind"`
	WorkerID string `json:"worker_id,omitempty"`
}

// TotalWood is stored + carried + remaining + spent.
func (s SnapshotV1) TotalWood() int {
	n := s.Home.WoodStored + s.Home.WoodSpent
	for _, nd := range s.Nodes {
		n += nd.Wood
	}
	for _, w := range s.Workers {
		n += w.WoodCarried
	}
	return n
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is for humans and tools; gob carries it too.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// PathFor is the conventional snapshot file name for tick under dir.
func PathFor(dir string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.snap.zst", tick))
}
