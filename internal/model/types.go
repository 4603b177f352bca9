package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Pose is a planar vehicle pose in arena coordinates.
type Pose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// StepResult is the normalized record of one simulator step, consumed by the
// reward aggregator. Displacement and rotation are derived by the adapter from
// the previous pose so reward components stay pure functions of this record.
type StepResult struct {
	Observation  []float64 `json:"observation"`
	Pose         Pose      `json:"pose"`
	Speed        float64   `json:"speed"`
	AngularVel   float64   `json:"angular_vel"`
	Displacement float64   `json:"displacement"`
	Collision    bool      `json:"collision"`
	LaserHit     bool      `json:"laser_hit"`
	Goal         bool      `json:"goal"`
	Terminal     bool      `json:"terminal"`
	Reason       string    `json:"reason,omitempty"`
}

type Transition struct {
	Observation     []float64          `json:"observation"`
	Action          []float64          `json:"action"`
	Reward          float64            `json:"reward"`
	NextObservation []float64          `json:"next_observation"`
	Terminated      bool               `json:"terminated"`
	Truncated       bool               `json:"truncated"`
	Info            map[string]float64 `json:"info,omitempty"`
}

// EpisodeState is the per-slot mutable record owned by one vectorized manager
// slot. It is reinitialized on every reset and never shared across slots.
type EpisodeState struct {
	Seed          int64              `json:"seed"`
	Difficulty    float64            `json:"difficulty"`
	Steps         int                `json:"steps"`
	Return        float64            `json:"return"`
	LastPose      Pose               `json:"last_pose"`
	ComponentSums map[string]float64 `json:"component_sums,omitempty"`
}

type CurriculumTier struct {
	Threshold  int64   `json:"threshold"`
	Difficulty float64 `json:"difficulty"`
}

type CurriculumState struct {
	HighWater  int64            `json:"high_water"`
	Difficulty float64          `json:"difficulty"`
	Schedule   []CurriculumTier `json:"schedule"`
}

// InstanceState is the checkpointed view of one manager slot at a step
// boundary. Simulator holds the engine snapshot when the simulator supports
// state capture, and is empty otherwise (resume then re-resets the slot).
type InstanceState struct {
	RNG         []byte       `json:"rng"`
	Episode     EpisodeState `json:"episode"`
	Observation []float64    `json:"observation"`
	Simulator   []byte       `json:"simulator,omitempty"`
}

type Checkpoint struct {
	VersionedRecord
	RunID          string          `json:"run_id"`
	CreatedAtUTC   string          `json:"created_at_utc"`
	BaseSeed       int64           `json:"base_seed"`
	Progress       int64           `json:"progress"`
	BatchIndex     int             `json:"batch_index"`
	Interrupted    bool            `json:"interrupted"`
	Curriculum     CurriculumState `json:"curriculum"`
	Instances      []InstanceState `json:"instances"`
	PolicyState    []byte          `json:"policy_state,omitempty"`
	OptimizerState []byte          `json:"optimizer_state,omitempty"`
	ConfigDigest   string          `json:"config_digest,omitempty"`
}

type RunRecord struct {
	VersionedRecord
	RunID           string  `json:"run_id"`
	CreatedAtUTC    string  `json:"created_at_utc"`
	Seed            int64   `json:"seed"`
	NEnvs           int     `json:"n_envs"`
	NSteps          int     `json:"n_steps"`
	TotalTimesteps  int64   `json:"total_timesteps"`
	Progress        int64   `json:"progress"`
	Batches         int     `json:"batches"`
	Episodes        int     `json:"episodes"`
	FinalDifficulty float64 `json:"final_difficulty"`
	MeanReturn      float64 `json:"mean_return"`
	WinRate         float64 `json:"win_rate"`
	StopReason      string  `json:"stop_reason"`
}

// EpisodeSummary records one finished episode for run diagnostics.
type EpisodeSummary struct {
	Instance    int     `json:"instance"`
	Seed        int64   `json:"seed"`
	Steps       int     `json:"steps"`
	Return      float64 `json:"return"`
	Difficulty  float64 `json:"difficulty"`
	Outcome     string  `json:"outcome"`
	EndProgress int64   `json:"end_progress"`
}

const (
	OutcomeVictory     = "victory"
	OutcomeDefeat      = "defeat"
	OutcomeCollision   = "collision"
	OutcomeOutOfBounds = "out_of_bounds"
	OutcomeTimeout     = "timeout"
	OutcomeFault       = "fault"
)
