package sim

import (
	"math"
	"reflect"
	"testing"
)

// testAction is a fixed, mildly curving drive so deterministic runs cover
// turning, translation and beam geometry.
func testAction(step int) []float64 {
	turn := 0.3 * math.Sin(float64(step)/17)
	return []float64{0.8 - turn, 0.8 + turn}
}

func TestArenaDeterminism(t *testing.T) {
	a := NewArena()
	b := NewArena()

	obsA, err := a.Reset(42, 0.6)
	if err != nil {
		t.Fatalf("reset a: %v", err)
	}
	obsB, err := b.Reset(42, 0.6)
	if err != nil {
		t.Fatalf("reset b: %v", err)
	}
	if !reflect.DeepEqual(obsA, obsB) {
		t.Fatalf("initial observations differ")
	}

	for step := 0; step < 400; step++ {
		outA, errA := a.Step(testAction(step))
		outB, errB := b.Step(testAction(step))
		if (errA == nil) != (errB == nil) {
			t.Fatalf("step %d: errors diverge: %v vs %v", step, errA, errB)
		}
		if errA != nil {
			t.Fatalf("step %d: %v", step, errA)
		}
		if !reflect.DeepEqual(outA, outB) {
			t.Fatalf("step %d: outcomes diverge", step)
		}
		if outA.Terminal {
			break
		}
	}
}

func TestArenaSeedChangesEpisode(t *testing.T) {
	a := NewArena()
	b := NewArena()

	obsA, err := a.Reset(1, 0.5)
	if err != nil {
		t.Fatalf("reset a: %v", err)
	}
	obsB, err := b.Reset(2, 0.5)
	if err != nil {
		t.Fatalf("reset b: %v", err)
	}
	if reflect.DeepEqual(obsA, obsB) {
		t.Fatalf("different seeds produced identical spawns")
	}
}

func TestArenaSnapshotRoundTrip(t *testing.T) {
	a := NewArena()
	if _, err := a.Reset(7, 0.8); err != nil {
		t.Fatalf("reset: %v", err)
	}
	for step := 0; step < 50; step++ {
		if _, err := a.Step(testAction(step)); err != nil {
			t.Fatalf("warmup step %d: %v", step, err)
		}
	}

	snapshot, err := a.SnapshotState()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	b := NewArena()
	if err := b.RestoreState(snapshot); err != nil {
		t.Fatalf("restore: %v", err)
	}

	for step := 50; step < 120; step++ {
		outA, errA := a.Step(testAction(step))
		outB, errB := b.Step(testAction(step))
		if (errA == nil) != (errB == nil) {
			t.Fatalf("step %d: errors diverge: %v vs %v", step, errA, errB)
		}
		if errA != nil {
			break
		}
		if !reflect.DeepEqual(outA, outB) {
			t.Fatalf("step %d: restored arena diverged", step)
		}
		if outA.Terminal {
			break
		}
	}
}

func TestArenaDifficultyScalesMines(t *testing.T) {
	cases := []struct {
		difficulty float64
		mines      int
	}{
		{0.0, 0},
		{0.5, 4},
		{1.0, 8},
	}
	for _, tc := range cases {
		a := NewArena()
		if _, err := a.Reset(3, tc.difficulty); err != nil {
			t.Fatalf("reset at difficulty %v: %v", tc.difficulty, err)
		}
		if len(a.mines) != tc.mines {
			t.Fatalf("difficulty %v placed %d mines, want %d", tc.difficulty, len(a.mines), tc.mines)
		}
	}
}

func TestArenaStaticOpponentHoldsPosition(t *testing.T) {
	a := NewArena()
	if _, err := a.Reset(11, 0.0); err != nil {
		t.Fatalf("reset: %v", err)
	}
	start := a.opponent
	for step := 0; step < 30; step++ {
		out, err := a.Step([]float64{0.2, 0.2})
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if out.Terminal {
			break
		}
	}
	if a.opponent != start {
		t.Fatalf("static opponent moved from %+v to %+v", start, a.opponent)
	}
}

func TestArenaAdversarialOpponentMoves(t *testing.T) {
	a := NewArena()
	if _, err := a.Reset(11, 1.0); err != nil {
		t.Fatalf("reset: %v", err)
	}
	start := a.opponent
	for step := 0; step < 30; step++ {
		out, err := a.Step([]float64{0, 0})
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if out.Terminal {
			break
		}
	}
	if a.opponent == start {
		t.Fatalf("adversarial opponent never moved")
	}
}

func TestArenaFullForwardEndsEpisode(t *testing.T) {
	a := NewArena()
	if _, err := a.Reset(5, 0.0); err != nil {
		t.Fatalf("reset: %v", err)
	}
	terminal := false
	for step := 0; step < 1000; step++ {
		out, err := a.Step([]float64{1, 1})
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if out.Terminal {
			if out.Reason == "" {
				t.Fatalf("terminal step carries no reason")
			}
			terminal = true
			break
		}
	}
	if !terminal {
		t.Fatalf("driving full forward never ended the episode")
	}
	if _, err := a.Step([]float64{1, 1}); err == nil {
		t.Fatalf("step after terminal succeeded")
	}
}

func TestArenaStepGuards(t *testing.T) {
	a := NewArena()
	if _, err := a.Step([]float64{0, 0}); err == nil {
		t.Fatalf("step before reset succeeded")
	}
	if _, err := a.Reset(1, 0.2); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := a.Step([]float64{0.5}); err == nil {
		t.Fatalf("short action accepted")
	}
}

func TestArenaOutcomeNormalizes(t *testing.T) {
	a := NewArena()
	obs, err := a.Reset(9, 0.4)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(obs) != ObservationSize {
		t.Fatalf("reset observation length %d, want %d", len(obs), ObservationSize)
	}
	out, err := a.Step(testAction(0))
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	step, err := Normalize(out)
	if err != nil {
		t.Fatalf("normalize arena outcome: %v", err)
	}
	if len(step.Observation) != ObservationSize {
		t.Fatalf("normalized observation length %d, want %d", len(step.Observation), ObservationSize)
	}
}
