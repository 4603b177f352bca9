package sim

import (
	"fmt"
	"math"

	"lasertag/internal/model"
)

// Normalize validates a backend's raw outcome and converts it into the
// canonical step record. The observation is copied so the caller never aliases
// a backend buffer. Missing kinematics entries default to zero; anything
// non-finite or structurally wrong is an error.
func Normalize(raw Outcome) (model.StepResult, error) {
	if len(raw.Observation) == 0 {
		return model.StepResult{}, fmt.Errorf("step payload: empty observation")
	}
	for i, v := range raw.Observation {
		if !finite(v) {
			return model.StepResult{}, fmt.Errorf("step payload: observation[%d] not finite", i)
		}
	}
	if len(raw.Pose) != 3 {
		return model.StepResult{}, fmt.Errorf("step payload: pose has %d elements, want 3", len(raw.Pose))
	}
	for i, v := range raw.Pose {
		if !finite(v) {
			return model.StepResult{}, fmt.Errorf("step payload: pose[%d] not finite", i)
		}
	}
	if len(raw.Kinematics) > 3 {
		return model.StepResult{}, fmt.Errorf("step payload: kinematics has %d elements, want at most 3", len(raw.Kinematics))
	}
	for i, v := range raw.Kinematics {
		if !finite(v) {
			return model.StepResult{}, fmt.Errorf("step payload: kinematics[%d] not finite", i)
		}
	}
	if raw.Goal && !raw.Terminal {
		return model.StepResult{}, fmt.Errorf("step payload: goal flag on non-terminal step")
	}
	if raw.Reason != "" && !raw.Terminal {
		return model.StepResult{}, fmt.Errorf("step payload: end reason %q on non-terminal step", raw.Reason)
	}

	obs := make([]float64, len(raw.Observation))
	copy(obs, raw.Observation)

	result := model.StepResult{
		Observation: obs,
		Pose:        model.Pose{X: raw.Pose[0], Y: raw.Pose[1], Heading: raw.Pose[2]},
		Collision:   raw.Collision,
		LaserHit:    raw.LaserHit,
		Goal:        raw.Goal,
		Terminal:    raw.Terminal,
		Reason:      raw.Reason,
	}
	if len(raw.Kinematics) > 0 {
		result.Speed = raw.Kinematics[0]
	}
	if len(raw.Kinematics) > 1 {
		result.AngularVel = raw.Kinematics[1]
	}
	if len(raw.Kinematics) > 2 {
		result.Displacement = raw.Kinematics[2]
	}
	return result, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
