package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
)

// RandomPolicy is the reference stochastic policy: actions are drawn from a
// seeded PCG stream independent of the observation. It exists to exercise the
// training loop deterministically, not to learn, so its whole state is the
// RNG stream.
type RandomPolicy struct {
	src        *rand.PCG
	rng        *rand.Rand
	actionSize int
}

func NewRandomPolicy(seed int64, actionSize int) (*RandomPolicy, error) {
	if actionSize < 1 {
		return nil, fmt.Errorf("policy: action size %d, want at least 1", actionSize)
	}
	src := rand.NewPCG(uint64(seed), uint64(seed))
	return &RandomPolicy{
		src:        src,
		rng:        rand.New(src),
		actionSize: actionSize,
	}, nil
}

func (p *RandomPolicy) Act(obs []float64) ([]float64, error) {
	if len(obs) == 0 {
		return nil, errors.New("policy: empty observation")
	}
	action := make([]float64, p.actionSize)
	for i := range action {
		action[i] = p.rng.Float64()*2 - 1
	}
	return action, nil
}

type randomPolicyState struct {
	RNG        []byte `json:"rng"`
	ActionSize int    `json:"action_size"`
}

func (p *RandomPolicy) SnapshotState() ([]byte, error) {
	rngState, err := p.src.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal policy rng: %w", err)
	}
	return json.Marshal(randomPolicyState{RNG: rngState, ActionSize: p.actionSize})
}

func (p *RandomPolicy) RestoreState(data []byte) error {
	var state randomPolicyState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode policy state: %w", err)
	}
	if state.ActionSize < 1 {
		return fmt.Errorf("policy state: action size %d", state.ActionSize)
	}
	src := rand.NewPCG(0, 0)
	if err := src.UnmarshalBinary(state.RNG); err != nil {
		return fmt.Errorf("restore policy rng: %w", err)
	}
	p.src = src
	p.rng = rand.New(src)
	p.actionSize = state.ActionSize
	return nil
}
