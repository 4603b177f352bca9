package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"lasertag/internal/model"
)

// Hyper carries the update hyperparameters a backend consumes. The reference
// optimizer only records them, but they travel through its snapshot so a
// resumed run can verify it was configured the same way.
type Hyper struct {
	LearningRate float64 `json:"learning_rate"`
	Gamma        float64 `json:"gamma"`
	EntCoef      float64 `json:"ent_coef"`
	BatchSize    int     `json:"batch_size"`
}

// RecordingOptimizer is the reference optimizer: it validates each batch and
// tallies update statistics without changing the policy. Validation failures
// surface as *OptimizationError, exactly as a diverging real backend would.
type RecordingOptimizer struct {
	hyper       Hyper
	updates     int
	transitions int64
	lastMean    float64
}

func NewRecordingOptimizer(hyper Hyper) *RecordingOptimizer {
	return &RecordingOptimizer{hyper: hyper}
}

func (o *RecordingOptimizer) Update(ctx context.Context, batch []model.Transition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return &OptimizationError{Reason: "empty batch"}
	}
	rewards := make([]float64, len(batch))
	for i, transition := range batch {
		if math.IsNaN(transition.Reward) || math.IsInf(transition.Reward, 0) {
			return &OptimizationError{Reason: fmt.Sprintf("non-finite reward at transition %d", i)}
		}
		if transition.Terminated && transition.Truncated {
			return &OptimizationError{Reason: fmt.Sprintf("transition %d both terminated and truncated", i)}
		}
		if len(transition.Observation) == 0 || len(transition.NextObservation) == 0 {
			return &OptimizationError{Reason: fmt.Sprintf("transition %d missing observation", i)}
		}
		rewards[i] = transition.Reward
	}

	o.updates++
	o.transitions += int64(len(batch))
	o.lastMean = stat.Mean(rewards, nil)
	return nil
}

func (o *RecordingOptimizer) Updates() int {
	return o.updates
}

func (o *RecordingOptimizer) LastMeanReward() float64 {
	return o.lastMean
}

type recordingOptimizerState struct {
	Hyper       Hyper   `json:"hyper"`
	Updates     int     `json:"updates"`
	Transitions int64   `json:"transitions"`
	LastMean    float64 `json:"last_mean"`
}

func (o *RecordingOptimizer) SnapshotState() ([]byte, error) {
	return json.Marshal(recordingOptimizerState{
		Hyper:       o.hyper,
		Updates:     o.updates,
		Transitions: o.transitions,
		LastMean:    o.lastMean,
	})
}

func (o *RecordingOptimizer) RestoreState(data []byte) error {
	var state recordingOptimizerState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode optimizer state: %w", err)
	}
	o.hyper = state.Hyper
	o.updates = state.Updates
	o.transitions = state.Transitions
	o.lastMean = state.LastMean
	return nil
}
