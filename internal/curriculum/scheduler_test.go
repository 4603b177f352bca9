package curriculum

import (
	"testing"

	"lasertag/internal/model"
)

func testSchedule() []model.CurriculumTier {
	return []model.CurriculumTier{
		{Threshold: 0, Difficulty: 0.1},
		{Threshold: 100000, Difficulty: 0.3},
		{Threshold: 500000, Difficulty: 0.6},
	}
}

func TestAdvanceSelectsTierInclusively(t *testing.T) {
	s, err := NewScheduler(testSchedule())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if got := s.Difficulty(); got != 0.1 {
		t.Fatalf("initial difficulty = %v, want 0.1", got)
	}
	if got := s.Advance(99999); got != 0.1 {
		t.Fatalf("advance(99999) = %v, want 0.1", got)
	}
	if got := s.Advance(100000); got != 0.3 {
		t.Fatalf("advance(100000) = %v, want 0.3", got)
	}
	if got := s.Advance(500000); got != 0.6 {
		t.Fatalf("advance(500000) = %v, want 0.6", got)
	}
	if got := s.Advance(2000000); got != 0.6 {
		t.Fatalf("advance past last tier = %v, want 0.6", got)
	}
}

func TestAdvanceNeverRegresses(t *testing.T) {
	s, err := NewScheduler(testSchedule())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	if got := s.Advance(100000); got != 0.3 {
		t.Fatalf("advance(100000) = %v, want 0.3", got)
	}
	if got := s.Advance(50000); got != 0.3 {
		t.Fatalf("stale progress lowered difficulty to %v", got)
	}
	if got := s.Advance(100000); got != 0.3 {
		t.Fatalf("repeated progress changed difficulty to %v", got)
	}
	if got := s.HighWater(); got != 100000 {
		t.Fatalf("high-water mark = %d, want 100000", got)
	}
}

func TestNewSchedulerRejectsBadSchedules(t *testing.T) {
	cases := []struct {
		name     string
		schedule []model.CurriculumTier
	}{
		{"empty", nil},
		{"first threshold nonzero", []model.CurriculumTier{{Threshold: 10, Difficulty: 0.1}}},
		{"thresholds not increasing", []model.CurriculumTier{
			{Threshold: 0, Difficulty: 0.1},
			{Threshold: 100, Difficulty: 0.2},
			{Threshold: 100, Difficulty: 0.3},
		}},
		{"difficulty above one", []model.CurriculumTier{{Threshold: 0, Difficulty: 1.5}}},
		{"difficulty negative", []model.CurriculumTier{{Threshold: 0, Difficulty: -0.1}}},
		{"difficulty regresses", []model.CurriculumTier{
			{Threshold: 0, Difficulty: 0.5},
			{Threshold: 100, Difficulty: 0.4},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewScheduler(tc.schedule); err == nil {
				t.Fatalf("schedule accepted")
			}
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	s, err := NewScheduler(testSchedule())
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.Advance(250000)

	restored, err := Restore(s.State())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Difficulty() != 0.3 {
		t.Fatalf("restored difficulty = %v, want 0.3", restored.Difficulty())
	}
	if restored.HighWater() != 250000 {
		t.Fatalf("restored high-water mark = %d, want 250000", restored.HighWater())
	}
	if got := restored.Advance(500000); got != 0.6 {
		t.Fatalf("advance after restore = %v, want 0.6", got)
	}
}

func TestRestoreRecomputesDifficulty(t *testing.T) {
	state := model.CurriculumState{
		HighWater:  100000,
		Difficulty: 0.9,
		Schedule:   testSchedule(),
	}
	s, err := Restore(state)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := s.Difficulty(); got != 0.3 {
		t.Fatalf("restored difficulty = %v, want schedule value 0.3", got)
	}
}
