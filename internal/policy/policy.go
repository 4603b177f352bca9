package policy

import (
	"context"
	"fmt"

	"lasertag/internal/model"
)

// Policy maps an observation to an action vector.
type Policy interface {
	Act(obs []float64) ([]float64, error)
}

// Optimizer consumes fixed-size transition batches and updates the policy it
// was built around. Implementations report numeric divergence and other
// unrecoverable update failures as *OptimizationError.
type Optimizer interface {
	Update(ctx context.Context, batch []model.Transition) error
}

// Snapshotter is an optional capability for policies and optimizers whose
// state must survive a checkpoint.
type Snapshotter interface {
	SnapshotState() ([]byte, error)
	RestoreState(state []byte) error
}

// OptimizationError marks a failed policy update. It is fatal: the
// orchestrator discards the batch, halts the run and leaves the last good
// checkpoint standing.
type OptimizationError struct {
	Reason string
	Err    error
}

func (e *OptimizationError) Error() string {
	msg := fmt.Sprintf("policy optimization: %s", e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OptimizationError) Unwrap() error {
	return e.Err
}
