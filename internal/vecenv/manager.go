package vecenv

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	"lasertag/internal/model"
	"lasertag/internal/reward"
	"lasertag/internal/sim"
)

// rankSeedStride spaces the per-instance seed chains, matching the
// seed + rank*1000 layout the training configs assume.
const rankSeedStride = 1000

// Config assembles a Manager. Factory builds one simulator per rank; when nil
// every slot gets the reference arena.
type Config struct {
	NumEnvs    int
	MaxSteps   int
	BaseSeed   int64
	Difficulty float64
	Aggregator *reward.Aggregator
	Factory    func(rank int) sim.Simulator
	Logger     zerolog.Logger
}

// Manager drives N simulator instances in lockstep. Step is a strict barrier:
// it returns one transition per instance or an error, never a partial vector.
// Finished episodes are reset in place and the fresh observation is reported
// as the transition's next observation, with the terminal diagnostics kept in
// the info map.
type Manager struct {
	log        zerolog.Logger
	agg        *reward.Aggregator
	maxSteps   int
	slots      []*slot
	difficulty float64
	served     int64
	episodes   []model.EpisodeSummary
	failed     bool
}

type slot struct {
	rank    int
	sim     sim.Simulator
	seedSrc *rand.PCG
	seedRNG *rand.Rand
	obs     []float64
	episode model.EpisodeState
}

func New(cfg Config) (*Manager, error) {
	if cfg.NumEnvs < 1 {
		return nil, fmt.Errorf("vecenv: num envs %d, want at least 1", cfg.NumEnvs)
	}
	if cfg.MaxSteps < 1 {
		return nil, fmt.Errorf("vecenv: max steps %d, want at least 1", cfg.MaxSteps)
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("vecenv: reward aggregator is required")
	}
	factory := cfg.Factory
	if factory == nil {
		factory = func(int) sim.Simulator { return sim.NewArena() }
	}

	m := &Manager{
		log:        cfg.Logger.With().Str("component", "vecenv").Logger(),
		agg:        cfg.Aggregator,
		maxSteps:   cfg.MaxSteps,
		difficulty: cfg.Difficulty,
		slots:      make([]*slot, cfg.NumEnvs),
	}
	for rank := 0; rank < cfg.NumEnvs; rank++ {
		chainSeed := cfg.BaseSeed + int64(rank)*rankSeedStride
		src := rand.NewPCG(uint64(chainSeed), uint64(chainSeed))
		s := &slot{
			rank:    rank,
			sim:     factory(rank),
			seedSrc: src,
			seedRNG: rand.New(src),
		}
		if err := m.resetSlot(s, m.difficulty); err != nil {
			return nil, err
		}
		m.slots[rank] = s
	}
	return m, nil
}

func (m *Manager) NumEnvs() int {
	return len(m.slots)
}

// Observations returns a copy of every instance's current observation, in
// rank order.
func (m *Manager) Observations() [][]float64 {
	out := make([][]float64, len(m.slots))
	for i, s := range m.slots {
		out[i] = copyFloats(s.obs)
	}
	return out
}

// SetDifficulty changes the difficulty used for subsequent resets. Episodes
// already in flight keep the difficulty they started with.
func (m *Manager) SetDifficulty(difficulty float64) {
	m.difficulty = difficulty
}

// Reset restarts the given instances (all of them when indices is nil) at the
// given difficulty, discarding their in-flight episodes.
func (m *Manager) Reset(indices []int, difficulty float64) error {
	m.difficulty = difficulty
	if indices == nil {
		for _, s := range m.slots {
			if err := m.resetSlot(s, difficulty); err != nil {
				return err
			}
		}
		return nil
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(m.slots) {
			return fmt.Errorf("vecenv: reset index %d out of range", idx)
		}
		if err := m.resetSlot(m.slots[idx], difficulty); err != nil {
			return err
		}
	}
	return nil
}

// resetSlot starts the slot's next episode with a seed drawn from its chain.
func (m *Manager) resetSlot(s *slot, difficulty float64) error {
	seed := s.seedRNG.Int64()
	obs, err := s.sim.Reset(seed, difficulty)
	if err != nil {
		return fmt.Errorf("vecenv: reset instance %d: %w", s.rank, err)
	}
	s.obs = copyFloats(obs)
	s.episode = model.EpisodeState{
		Seed:          seed,
		Difficulty:    difficulty,
		ComponentSums: make(map[string]float64, len(reward.Components)),
	}
	return nil
}

type slotStep struct {
	result    model.StepResult
	total     float64
	breakdown map[string]float64
	err       error
}

// Step advances every instance by one tick under the matching action. The
// simulator work runs across slots in parallel; all episode bookkeeping,
// truncation and auto-resets happen afterwards in rank order so results and
// seed chains stay deterministic.
func (m *Manager) Step(actions [][]float64) ([]model.Transition, error) {
	if m.failed {
		return nil, fmt.Errorf("vecenv: manager is failed, reset required")
	}
	if len(actions) != len(m.slots) {
		return nil, fmt.Errorf("vecenv: got %d actions for %d instances", len(actions), len(m.slots))
	}

	outs := make([]slotStep, len(m.slots))
	var wg sync.WaitGroup
	for i, s := range m.slots {
		wg.Add(1)
		go func(i int, s *slot, action []float64) {
			defer wg.Done()
			outs[i] = m.stepSlot(s, action)
		}(i, s, actions[i])
	}
	wg.Wait()

	transitions := make([]model.Transition, len(m.slots))
	for i, s := range m.slots {
		transition, err := m.finishSlot(s, actions[i], outs[i])
		if err != nil {
			m.failed = true
			return nil, err
		}
		transitions[i] = transition
	}
	return transitions, nil
}

func (m *Manager) stepSlot(s *slot, action []float64) slotStep {
	outcome, err := s.sim.Step(action)
	if err != nil {
		return slotStep{err: &sim.SimulationError{Instance: s.rank, Reason: "step failed", Err: err}}
	}
	result, err := sim.Normalize(outcome)
	if err != nil {
		return slotStep{err: &sim.SimulationError{Instance: s.rank, Reason: "malformed step payload", Err: err}}
	}
	total, breakdown := m.agg.Compute(result)
	return slotStep{result: result, total: total, breakdown: breakdown}
}

// finishSlot applies one stepped slot's bookkeeping: reward accumulation,
// truncation, the auto-reset on episode end and fault recovery. Terminated
// wins when a terminal and the step limit coincide.
func (m *Manager) finishSlot(s *slot, action []float64, out slotStep) (model.Transition, error) {
	m.served++
	if out.err != nil {
		return m.recoverSlot(s, action, out.err)
	}

	s.episode.Steps++
	s.episode.Return += out.total
	s.episode.LastPose = out.result.Pose
	for name, component := range out.breakdown {
		s.episode.ComponentSums[name] += component
	}

	terminated := out.result.Terminal
	truncated := false
	if !terminated && s.episode.Steps >= m.maxSteps {
		truncated = true
	}

	info := make(map[string]float64, len(out.breakdown)+3)
	info["difficulty"] = s.episode.Difficulty
	for name, component := range out.breakdown {
		info["reward/"+name] = component
	}

	transition := model.Transition{
		Observation: s.obs,
		Action:      copyFloats(action),
		Reward:      out.total,
		Terminated:  terminated,
		Truncated:   truncated,
		Info:        info,
	}

	if !terminated && !truncated {
		s.obs = out.result.Observation
		transition.NextObservation = copyFloats(s.obs)
		return transition, nil
	}

	info["episode/steps"] = float64(s.episode.Steps)
	info["episode/return"] = s.episode.Return
	outcomeName := out.result.Reason
	if outcomeName == "" {
		outcomeName = model.OutcomeTimeout
	}
	m.recordEpisode(s, outcomeName)
	m.log.Debug().
		Int("instance", s.rank).
		Str("outcome", outcomeName).
		Int("steps", s.episode.Steps).
		Float64("return", s.episode.Return).
		Msg("episode finished")

	if err := m.resetSlot(s, m.difficulty); err != nil {
		return model.Transition{}, err
	}
	transition.NextObservation = copyFloats(s.obs)
	return transition, nil
}

// recoverSlot handles a per-instance simulation fault: the episode is cut as
// truncated, the fault is logged and the instance is force-reset. The run
// keeps going unless the reset itself fails.
func (m *Manager) recoverSlot(s *slot, action []float64, stepErr error) (model.Transition, error) {
	m.log.Error().
		Err(stepErr).
		Int("instance", s.rank).
		Msg("simulation fault, force-resetting instance")

	info := map[string]float64{
		"difficulty":     s.episode.Difficulty,
		"fault":          1,
		"episode/steps":  float64(s.episode.Steps),
		"episode/return": s.episode.Return,
	}
	transition := model.Transition{
		Observation: s.obs,
		Action:      copyFloats(action),
		Reward:      0,
		Truncated:   true,
		Info:        info,
	}
	m.recordEpisode(s, model.OutcomeFault)

	if err := m.resetSlot(s, m.difficulty); err != nil {
		return model.Transition{}, err
	}
	transition.NextObservation = copyFloats(s.obs)
	return transition, nil
}

func (m *Manager) recordEpisode(s *slot, outcome string) {
	m.episodes = append(m.episodes, model.EpisodeSummary{
		Instance:    s.rank,
		Seed:        s.episode.Seed,
		Steps:       s.episode.Steps,
		Return:      s.episode.Return,
		Difficulty:  s.episode.Difficulty,
		Outcome:     outcome,
		EndProgress: m.served,
	})
}

// DrainEpisodes returns the episodes finished since the last drain.
func (m *Manager) DrainEpisodes() []model.EpisodeSummary {
	out := m.episodes
	m.episodes = nil
	return out
}

// SyncProgress aligns the served-step counter after a checkpoint restore so
// episode summaries keep counting from the resumed position.
func (m *Manager) SyncProgress(progress int64) {
	m.served = progress
}

// ExportState captures every instance for a checkpoint: seed chain, episode
// bookkeeping, current observation and, when the simulator supports it, the
// full mid-episode simulator state.
func (m *Manager) ExportState() ([]model.InstanceState, error) {
	states := make([]model.InstanceState, len(m.slots))
	for i, s := range m.slots {
		rngBlob, err := s.seedSrc.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("vecenv: marshal instance %d seed chain: %w", s.rank, err)
		}
		state := model.InstanceState{
			RNG:         rngBlob,
			Episode:     cloneEpisode(s.episode),
			Observation: copyFloats(s.obs),
		}
		if snap, ok := s.sim.(sim.StateSnapshotter); ok {
			blob, err := snap.SnapshotState()
			if err != nil {
				return nil, fmt.Errorf("vecenv: snapshot instance %d: %w", s.rank, err)
			}
			state.Simulator = blob
		}
		states[i] = state
	}
	return states, nil
}

// RestoreState rebuilds the instances from a checkpoint. Instances whose
// simulator state was captured resume mid-episode; the rest start a fresh
// episode drawn from their restored seed chain.
func (m *Manager) RestoreState(states []model.InstanceState) error {
	if len(states) != len(m.slots) {
		return fmt.Errorf("vecenv: checkpoint has %d instances, manager has %d", len(states), len(m.slots))
	}
	for i, s := range m.slots {
		state := states[i]
		src := rand.NewPCG(0, 0)
		if err := src.UnmarshalBinary(state.RNG); err != nil {
			return fmt.Errorf("vecenv: restore instance %d seed chain: %w", s.rank, err)
		}
		s.seedSrc = src
		s.seedRNG = rand.New(src)

		if state.Simulator != nil {
			snap, ok := s.sim.(sim.StateSnapshotter)
			if !ok {
				return fmt.Errorf("vecenv: checkpoint carries simulator state for instance %d but the backend cannot restore it", s.rank)
			}
			if err := snap.RestoreState(state.Simulator); err != nil {
				return &sim.SimulationError{Instance: s.rank, Reason: "restore failed", Err: err}
			}
			s.episode = cloneEpisode(state.Episode)
			s.obs = copyFloats(state.Observation)
			continue
		}
		if err := m.resetSlot(s, m.difficulty); err != nil {
			return err
		}
	}
	m.failed = false
	return nil
}

func cloneEpisode(e model.EpisodeState) model.EpisodeState {
	out := e
	out.ComponentSums = make(map[string]float64, len(e.ComponentSums))
	for name, v := range e.ComponentSums {
		out.ComponentSums[name] = v
	}
	return out
}

func copyFloats(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
