package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ViewerName      string `json:"viewer_name"`
	// MaxQueue bounds buffered STATE frames; older frames are dropped first.
	MaxQueue int `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	TickRateHz         int     `json:"tick_rate_hz"`
	WorkerRadius       float64 `json:"worker_radius"`
	HarvestRange       float64 `json:"harvest_range"`
	DepositRange       float64 `json:"deposit_range"`
	MaxWoodCapacity    int     `json:"max_wood_capacity"`
	WorkerCost         int     `json:"worker_cost"`
	MovementDurationMs int     `json:"movement_duration_ms"`
}

// STATE (server -> client), one per tick.
type StateMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	WorldID         string         `json:"world_id"`
	Tick            uint64         `json:"tick"`
	Workers         []WorkerState  `json:"workers"`
	Nodes           []NodeState    `json:"nodes"`
	Home            HomeState      `json:"home"`
	Selection       SelectionState `json:"selection"`
}

// Worker states as reported to presentation.
const (
	WorkerIdle       = "IDLE"
	WorkerMoving     = "MOVING"
	WorkerHarvesting = "HARVESTING"
)

type WorkerState struct {
	ID          string      `json:"id"`
	Pos         [2]float64  `json:"pos"`
	WoodCarried int         `json:"wood_carried"`
	State       string      `json:"state"`
	Selected    bool        `json:"selected"`
	Target      *[2]float64 `json:"target,omitempty"`
	Purpose     string      `json:"purpose,omitempty"`
	// MoveProgress is the fraction of the current move completed.
	MoveProgress float64 `json:"move_progress,omitempty"`
	NodeID       string  `json:"node_id,omitempty"`
	LastNodeID   string  `json:"last_node_id,omitempty"`
}

type NodeState struct {
	ID              string     `json:"id"`
	Pos             [2]float64 `json:"pos"`
	Wood            int        `json:"wood"`
	HarvestProgress float64    `json:"harvest_progress"`
	Harvesters      int        `json:"harvesters"`
}

type HomeState struct {
	Pos        [2]float64 `json:"pos"`
	WoodStored int        `json:"wood_stored"`
	WoodSpent  int        `json:"wood_spent"`
	Selected   bool       `json:"selected"`
	CanTrain   bool       `json:"can_train"`
}

// Selection kinds.
const (
	SelectNone   = "NONE"
	SelectHome   = "HOME"
	SelectWorker = "WORKER"
)

type SelectionState struct {
	Kind     string `json:"kind"`
	WorkerID string `json:"worker_id,omitempty"`
}

// CMD (client -> server)
type CmdMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ID              string  `json:"id"`
	Command         Command `json:"command"`
}

// Command kinds.
const (
	CmdSelect    = "SELECT"
	CmdMove      = "MOVE"
	CmdHarvest   = "HARVEST"
	CmdDeposit   = "DEPOSIT"
	CmdTrain     = "TRAIN"
	CmdCommandAt = "COMMAND_AT"
)

// EntityHome selects the home base in a SELECT command.
const EntityHome = "home"

// Command is a single input to the simulation. Which fields matter depends on
// Kind: SELECT uses Entity (a worker id, "home", or empty for none); MOVE uses
// WorkerID and Target; HARVEST uses WorkerID and optionally NodeID; DEPOSIT
// uses WorkerID; COMMAND_AT uses Target and the current selection.
type Command struct {
	Kind     string      `json:"kind"`
	WorkerID string      `json:"worker_id,omitempty"`
	NodeID   string      `json:"node_id,omitempty"`
	Entity   string      `json:"entity,omitempty"`
	Target   *[2]float64 `json:"target,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
