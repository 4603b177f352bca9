package curriculum

import (
	"fmt"

	"lasertag/internal/model"
)

// Scheduler maps cumulative environment steps to an arena difficulty using an
// ordered tier schedule. Difficulty only ever moves forward: the scheduler
// tracks the highest progress it has seen, so a stale or repeated progress
// report never lowers the difficulty.
type Scheduler struct {
	schedule  []model.CurriculumTier
	highWater int64
	current   float64
}

func NewScheduler(schedule []model.CurriculumTier) (*Scheduler, error) {
	if err := validateSchedule(schedule); err != nil {
		return nil, err
	}
	s := &Scheduler{schedule: cloneSchedule(schedule)}
	s.current = s.difficultyFor(0)
	return s, nil
}

// Restore rebuilds a scheduler from checkpointed state. The difficulty is
// recomputed from the restored high-water mark so the stored value cannot
// drift from the schedule.
func Restore(state model.CurriculumState) (*Scheduler, error) {
	s, err := NewScheduler(state.Schedule)
	if err != nil {
		return nil, err
	}
	if state.HighWater < 0 {
		return nil, fmt.Errorf("curriculum state: negative high-water mark %d", state.HighWater)
	}
	s.highWater = state.HighWater
	s.current = s.difficultyFor(state.HighWater)
	return s, nil
}

// Restore applies checkpointed state to this scheduler in place. See the
// package-level Restore for the validation rules.
func (s *Scheduler) Restore(state model.CurriculumState) error {
	restored, err := Restore(state)
	if err != nil {
		return err
	}
	*s = *restored
	return nil
}

func validateSchedule(schedule []model.CurriculumTier) error {
	if len(schedule) == 0 {
		return fmt.Errorf("curriculum schedule is empty")
	}
	if schedule[0].Threshold != 0 {
		return fmt.Errorf("curriculum schedule: first tier threshold is %d, must be 0", schedule[0].Threshold)
	}
	for i, tier := range schedule {
		if tier.Difficulty < 0 || tier.Difficulty > 1 {
			return fmt.Errorf("curriculum schedule tier %d: difficulty %v outside [0, 1]", i, tier.Difficulty)
		}
		if i == 0 {
			continue
		}
		if tier.Threshold <= schedule[i-1].Threshold {
			return fmt.Errorf("curriculum schedule tier %d: threshold %d not above previous %d", i, tier.Threshold, schedule[i-1].Threshold)
		}
		if tier.Difficulty < schedule[i-1].Difficulty {
			return fmt.Errorf("curriculum schedule tier %d: difficulty %v below previous %v", i, tier.Difficulty, schedule[i-1].Difficulty)
		}
	}
	return nil
}

// Advance reports cumulative progress and returns the difficulty in force.
// Thresholds are inclusive: progress equal to a tier threshold selects that
// tier. Calling with the same progress twice is a no-op.
func (s *Scheduler) Advance(progress int64) float64 {
	if progress > s.highWater {
		s.highWater = progress
		s.current = s.difficultyFor(progress)
	}
	return s.current
}

func (s *Scheduler) difficultyFor(progress int64) float64 {
	difficulty := s.schedule[0].Difficulty
	for _, tier := range s.schedule {
		if progress >= tier.Threshold {
			difficulty = tier.Difficulty
		}
	}
	return difficulty
}

func (s *Scheduler) Difficulty() float64 {
	return s.current
}

func (s *Scheduler) HighWater() int64 {
	return s.highWater
}

func (s *Scheduler) State() model.CurriculumState {
	return model.CurriculumState{
		HighWater:  s.highWater,
		Difficulty: s.current,
		Schedule:   cloneSchedule(s.schedule),
	}
}

func cloneSchedule(schedule []model.CurriculumTier) []model.CurriculumTier {
	out := make([]model.CurriculumTier, len(schedule))
	copy(out, schedule)
	return out
}
