package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Seed               int64 `yaml:"seed" json:"seed"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	WorkerCost      int        `yaml:"worker_cost" json:"worker_cost"`
	MaxWoodCapacity int        `yaml:"max_wood_capacity" json:"max_wood_capacity"`
	WorkerRadius    float64    `yaml:"worker_radius" json:"worker_radius"`
	InitialWorkers  int        `yaml:"initial_workers" json:"initial_workers"`
	SpawnOffset     [2]float64 `yaml:"spawn_offset" json:"spawn_offset"`

	HarvestRange    float64 `yaml:"harvest_range" json:"harvest_range"`
	MinHarvestRange float64 `yaml:"min_harvest_range" json:"min_harvest_range"`
	MaxHarvestRange float64 `yaml:"max_harvest_range" json:"max_harvest_range"`
	DepositRange    float64 `yaml:"deposit_range" json:"deposit_range"`
	// HarvestRatePerSec is node progress added per harvester per second; one
	// unit of wood is extracted each time progress reaches 1.
	HarvestRatePerSec float64 `yaml:"harvest_rate_per_sec" json:"harvest_rate_per_sec"`

	MovementDurationMs      int `yaml:"movement_duration_ms" json:"movement_duration_ms"`
	DepositToHarvestDelayMs int `yaml:"deposit_to_harvest_delay_ms" json:"deposit_to_harvest_delay_ms"`

	// ManualMovesResumeWork re-evaluates the lifecycle on arrival of manual
	// moves too (deposit when carrying, resume harvest when not).
	ManualMovesResumeWork bool `yaml:"manual_moves_resume_work" json:"manual_moves_resume_work"`

	Picking Picking `yaml:"picking" json:"picking"`

	Home  HomeDef   `yaml:"home" json:"home"`
	Nodes []NodeDef `yaml:"nodes" json:"nodes"`
}

// Picking radii translate a world click into an entity.
type Picking struct {
	NodeRadius   float64 `yaml:"node_radius" json:"node_radius"`
	HomeRadius   float64 `yaml:"home_radius" json:"home_radius"`
	WorkerRadius float64 `yaml:"worker_radius" json:"worker_radius"`
}

type HomeDef struct {
	Pos  [2]float64 `yaml:"pos" json:"pos"`
	Wood int        `yaml:"wood" json:"wood"`
}

type NodeDef struct {
	ID   string     `yaml:"id" json:"id"`
	Pos  [2]float64 `yaml:"pos" json:"pos"`
	Wood int        `yaml:"wood" json:"wood"`
}

// Defaults returns the stock camp: one tree east of the home, one worker.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:         "1.0",
		TickRateHz:              20,
		Seed:                    1337,
		SnapshotEveryTicks:      6000,
		WorkerCost:              10,
		MaxWoodCapacity:         5,
		WorkerRadius:            20,
		InitialWorkers:          1,
		SpawnOffset:             [2]float64{50, 0},
		HarvestRange:            40,
		MinHarvestRange:         35,
		MaxHarvestRange:         38,
		DepositRange:            50,
		HarvestRatePerSec:       0.1,
		MovementDurationMs:      500,
		DepositToHarvestDelayMs: 100,
		ManualMovesResumeWork:   true,
		Picking: Picking{
			NodeRadius:   40,
			HomeRadius:   50,
			WorkerRadius: 25,
		},
		Home:  HomeDef{Pos: [2]float64{-200, 0}},
		Nodes: []NodeDef{{ID: "N1", Pos: [2]float64{200, 0}, Wood: 100}},
	}
}

// Load reads path on top of Defaults, so a file only needs the keys it changes.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0"))
	}
	if t.WorkerCost < 0 {
		errs = append(errs, fmt.Errorf("worker_cost must be >= 0"))
	}
	if t.MaxWoodCapacity <= 0 {
		errs = append(errs, fmt.Errorf("max_wood_capacity must be > 0"))
	}
	if t.WorkerRadius <= 0 {
		errs = append(errs, fmt.Errorf("worker_radius must be > 0"))
	}
	if t.InitialWorkers < 0 {
		errs = append(errs, fmt.Errorf("initial_workers must be >= 0"))
	}
	if t.MinHarvestRange <= 0 || t.MaxHarvestRange < t.MinHarvestRange {
		errs = append(errs, fmt.Errorf("harvest slot range [%v,%v] is invalid", t.MinHarvestRange, t.MaxHarvestRange))
	}
	if t.MaxHarvestRange > t.HarvestRange {
		errs = append(errs, fmt.Errorf("max_harvest_range %v exceeds harvest_range %v", t.MaxHarvestRange, t.HarvestRange))
	}
	if t.DepositRange <= 5 {
		errs = append(errs, fmt.Errorf("deposit_range must be > 5"))
	}
	if t.HarvestRatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("harvest_rate_per_sec must be > 0"))
	}
	if t.MovementDurationMs <= 0 {
		errs = append(errs, fmt.Errorf("movement_duration_ms must be > 0"))
	}
	if t.DepositToHarvestDelayMs < 0 {
		errs = append(errs, fmt.Errorf("deposit_to_harvest_delay_ms must be >= 0"))
	}
	if t.Home.Wood < 0 {
		errs = append(errs, fmt.Errorf("home.wood must be >= 0"))
	}
	if len(t.Nodes) == 0 {
		errs = append(errs, fmt.Errorf("at least one node is required"))
	}
	seen := map[string]bool{}
	for i, n := range t.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			errs = append(errs, fmt.Errorf("nodes[%d]: empty id", i))
			continue
		}
		if seen[id] {
			errs = append(errs, fmt.Errorf("nodes[%d]: duplicate id %q", i, id))
		}
		seen[id] = true
		if n.Wood < 0 {
			errs = append(errs, fmt.Errorf("nodes[%d]: wood must be >= 0", i))
		}
	}
	return errors.Join(errs...)
}

// Ticks converts a duration in milliseconds to whole ticks, rounding up.
func (t Tuning) Ticks(ms int) uint64 {
	if ms <= 0 {
		return 0
	}
	n := (ms*t.TickRateHz + 999) / 1000
	return uint64(n)
}

// MovementTicks is the fixed travel time of every move, at least one tick.
func (t Tuning) MovementTicks() uint64 {
	if n := t.Ticks(t.MovementDurationMs); n > 0 {
		return n
	}
	return 1
}

// CollisionRadius is the minimum center-to-center distance between workers.
func (t Tuning) CollisionRadius() float64 { return 2 * t.WorkerRadius }

// TickSeconds is the simulated time covered by one tick.
func (t Tuning) TickSeconds() float64 { return 1 / float64(t.TickRateHz) }
