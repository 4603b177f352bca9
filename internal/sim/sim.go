package sim

import "fmt"

// Simulator is the contract a physics backend fulfils. Implementations must be
// deterministic: equal seed, difficulty and action sequence reproduce the same
// outcomes bit for bit.
type Simulator interface {
	// Reset starts a fresh episode and returns its initial observation.
	Reset(seed int64, difficulty float64) ([]float64, error)
	// Step advances one tick under the given action.
	Step(action []float64) (Outcome, error)
}

// StateSnapshotter is an optional simulator capability. Backends that expose
// it can be checkpointed mid-episode; the others are resumed with a fresh
// deterministic reset.
type StateSnapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreState(state []byte) error
}

// Outcome is the raw step payload a backend reports. Pose is [x, y, heading];
// Kinematics is [speed, angular velocity, displacement] and may be shorter
// when a backend does not track all three. Normalize turns an Outcome into the
// canonical step record.
type Outcome struct {
	Observation []float64
	Pose        []float64
	Kinematics  []float64
	Collision   bool
	LaserHit    bool
	Goal        bool
	Terminal    bool
	Reason      string
}

// SimulationError marks a per-instance simulation fault. It is recoverable:
// the manager force-resets the failing instance and the run continues.
type SimulationError struct {
	Instance int
	Reason   string
	Err      error
}

func (e *SimulationError) Error() string {
	msg := fmt.Sprintf("simulation instance %d: %s", e.Instance, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}
