package policy

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"lasertag/internal/model"
)

func TestRandomPolicyDeterminism(t *testing.T) {
	a, err := NewRandomPolicy(42, 2)
	if err != nil {
		t.Fatalf("new policy a: %v", err)
	}
	b, err := NewRandomPolicy(42, 2)
	if err != nil {
		t.Fatalf("new policy b: %v", err)
	}

	obs := []float64{0.5, -0.5, 0.1}
	for i := 0; i < 100; i++ {
		actA, err := a.Act(obs)
		if err != nil {
			t.Fatalf("act a: %v", err)
		}
		actB, err := b.Act(obs)
		if err != nil {
			t.Fatalf("act b: %v", err)
		}
		if !reflect.DeepEqual(actA, actB) {
			t.Fatalf("draw %d: actions diverge: %v vs %v", i, actA, actB)
		}
		for j, v := range actA {
			if v < -1 || v > 1 {
				t.Fatalf("draw %d: action[%d] = %v outside [-1, 1]", i, j, v)
			}
		}
		if len(actA) != 2 {
			t.Fatalf("draw %d: action length %d, want 2", i, len(actA))
		}
	}
}

func TestRandomPolicySnapshotRoundTrip(t *testing.T) {
	p, err := NewRandomPolicy(7, 2)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	obs := []float64{1, 2}
	for i := 0; i < 25; i++ {
		if _, err := p.Act(obs); err != nil {
			t.Fatalf("warmup act: %v", err)
		}
	}

	snapshot, err := p.SnapshotState()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	restored, err := NewRandomPolicy(0, 1)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if err := restored.RestoreState(snapshot); err != nil {
		t.Fatalf("restore: %v", err)
	}

	for i := 0; i < 50; i++ {
		actA, err := p.Act(obs)
		if err != nil {
			t.Fatalf("act original: %v", err)
		}
		actB, err := restored.Act(obs)
		if err != nil {
			t.Fatalf("act restored: %v", err)
		}
		if !reflect.DeepEqual(actA, actB) {
			t.Fatalf("draw %d after restore diverges", i)
		}
	}
}

func TestRandomPolicyRejectsEmptyObservation(t *testing.T) {
	p, err := NewRandomPolicy(1, 2)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	if _, err := p.Act(nil); err == nil {
		t.Fatalf("empty observation accepted")
	}
}

func validBatch(n int) []model.Transition {
	batch := make([]model.Transition, n)
	for i := range batch {
		batch[i] = model.Transition{
			Observation:     []float64{1, 2},
			Action:          []float64{0.5, -0.5},
			Reward:          float64(i) - 1.5,
			NextObservation: []float64{2, 3},
		}
	}
	return batch
}

func TestRecordingOptimizerTalliesBatches(t *testing.T) {
	o := NewRecordingOptimizer(Hyper{LearningRate: 3e-4, Gamma: 0.995, EntCoef: 0.01, BatchSize: 4})

	if err := o.Update(context.Background(), validBatch(4)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := o.Update(context.Background(), validBatch(4)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if o.Updates() != 2 {
		t.Fatalf("updates = %d, want 2", o.Updates())
	}
	want := (-1.5 + -0.5 + 0.5 + 1.5) / 4
	if math.Abs(o.LastMeanReward()-want) > 1e-12 {
		t.Fatalf("mean reward = %v, want %v", o.LastMeanReward(), want)
	}
}

func TestRecordingOptimizerRejectsBadBatches(t *testing.T) {
	o := NewRecordingOptimizer(Hyper{})
	ctx := context.Background()

	cases := []struct {
		name  string
		batch []model.Transition
	}{
		{"empty", nil},
		{"non-finite reward", func() []model.Transition {
			b := validBatch(2)
			b[1].Reward = math.NaN()
			return b
		}()},
		{"terminated and truncated", func() []model.Transition {
			b := validBatch(2)
			b[0].Terminated = true
			b[0].Truncated = true
			return b
		}()},
		{"missing observation", func() []model.Transition {
			b := validBatch(2)
			b[0].Observation = nil
			return b
		}()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := o.Update(ctx, tc.batch)
			if err == nil {
				t.Fatalf("bad batch accepted")
			}
			var optErr *OptimizationError
			if !errors.As(err, &optErr) {
				t.Fatalf("error type = %T, want *OptimizationError", err)
			}
		})
	}
}

func TestRecordingOptimizerHonorsContext(t *testing.T) {
	o := NewRecordingOptimizer(Hyper{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Update(ctx, validBatch(2))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	var optErr *OptimizationError
	if errors.As(err, &optErr) {
		t.Fatalf("cancellation misclassified as optimization failure")
	}
}

func TestRecordingOptimizerSnapshotRoundTrip(t *testing.T) {
	o := NewRecordingOptimizer(Hyper{LearningRate: 1e-3, BatchSize: 8})
	if err := o.Update(context.Background(), validBatch(8)); err != nil {
		t.Fatalf("update: %v", err)
	}

	snapshot, err := o.SnapshotState()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	restored := NewRecordingOptimizer(Hyper{})
	if err := restored.RestoreState(snapshot); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Updates() != 1 || restored.LastMeanReward() != o.LastMeanReward() {
		t.Fatalf("restored optimizer lost state: %+v", restored)
	}
}
