package sim

import (
	"math"
	"testing"
)

func validOutcome() Outcome {
	return Outcome{
		Observation: []float64{0.1, 0.2, 0.3},
		Pose:        []float64{1.0, -0.5, 0.25},
		Kinematics:  []float64{1.2, 0.4, 0.02},
	}
}

func TestNormalizeFillsCanonicalRecord(t *testing.T) {
	out := validOutcome()
	out.LaserHit = true
	step, err := Normalize(out)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if step.Pose.X != 1.0 || step.Pose.Y != -0.5 || step.Pose.Heading != 0.25 {
		t.Fatalf("pose = %+v", step.Pose)
	}
	if step.Speed != 1.2 || step.AngularVel != 0.4 || step.Displacement != 0.02 {
		t.Fatalf("kinematics = %v %v %v", step.Speed, step.AngularVel, step.Displacement)
	}
	if !step.LaserHit || step.Collision || step.Goal || step.Terminal {
		t.Fatalf("flags = %+v", step)
	}
}

func TestNormalizeDefaultsMissingKinematics(t *testing.T) {
	out := validOutcome()
	out.Kinematics = []float64{1.5}
	step, err := Normalize(out)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if step.Speed != 1.5 || step.AngularVel != 0 || step.Displacement != 0 {
		t.Fatalf("kinematics defaults = %v %v %v", step.Speed, step.AngularVel, step.Displacement)
	}
}

func TestNormalizeCopiesObservation(t *testing.T) {
	out := validOutcome()
	step, err := Normalize(out)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	out.Observation[0] = 99
	if step.Observation[0] == 99 {
		t.Fatalf("normalized observation aliases the backend buffer")
	}
}

func TestNormalizeRejectsMalformedPayloads(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Outcome)
	}{
		{"empty observation", func(o *Outcome) { o.Observation = nil }},
		{"nan observation", func(o *Outcome) { o.Observation[1] = math.NaN() }},
		{"short pose", func(o *Outcome) { o.Pose = []float64{1, 2} }},
		{"infinite pose", func(o *Outcome) { o.Pose[2] = math.Inf(1) }},
		{"oversized kinematics", func(o *Outcome) { o.Kinematics = []float64{1, 2, 3, 4} }},
		{"nan kinematics", func(o *Outcome) { o.Kinematics[0] = math.NaN() }},
		{"goal without terminal", func(o *Outcome) { o.Goal = true }},
		{"reason without terminal", func(o *Outcome) { o.Reason = "victory" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := validOutcome()
			tc.mutate(&out)
			if _, err := Normalize(out); err == nil {
				t.Fatalf("malformed payload accepted")
			}
		})
	}
}

func TestSimulationErrorUnwraps(t *testing.T) {
	cause := &SimulationError{Instance: 2, Reason: "step failed"}
	if cause.Error() == "" {
		t.Fatalf("empty error text")
	}
	wrapped := &SimulationError{Instance: 3, Reason: "restore failed", Err: cause}
	if wrapped.Unwrap() != cause {
		t.Fatalf("unwrap lost the cause")
	}
}
