package train

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lasertag/internal/model"
	"lasertag/internal/policy"
	"lasertag/internal/stats"
	"lasertag/internal/vecenv"
)

type EvalConfig struct {
	Episodes int
	Manager  *vecenv.Manager
	Policy   policy.Policy
	Logger   zerolog.Logger
}

type EvalResult struct {
	Stats    stats.WindowStats
	Episodes []model.EpisodeSummary
}

// Evaluate rolls the policy out without learning until the requested number
// of episodes has finished, relying on the manager's auto-reset to keep every
// instance busy. Statistics cover exactly the first Episodes finished
// episodes, in completion order.
func Evaluate(ctx context.Context, cfg EvalConfig) (EvalResult, error) {
	if cfg.Manager == nil {
		return EvalResult{}, fmt.Errorf("manager is required")
	}
	if cfg.Policy == nil {
		return EvalResult{}, fmt.Errorf("policy is required")
	}
	if cfg.Episodes < 1 {
		return EvalResult{}, fmt.Errorf("episodes must be >= 1, got %d", cfg.Episodes)
	}

	logger := cfg.Logger.With().Str("component", "eval").Logger()
	window, err := stats.NewWindow(cfg.Episodes)
	if err != nil {
		return EvalResult{}, err
	}

	numEnvs := cfg.Manager.NumEnvs()
	finished := make([]model.EpisodeSummary, 0, cfg.Episodes)
	for len(finished) < cfg.Episodes {
		if err := ctx.Err(); err != nil {
			return EvalResult{}, err
		}

		observations := cfg.Manager.Observations()
		actions := make([][]float64, numEnvs)
		for i, obs := range observations {
			action, err := cfg.Policy.Act(obs)
			if err != nil {
				return EvalResult{}, fmt.Errorf("policy action for instance %d: %w", i, err)
			}
			actions[i] = action
		}
		if _, err := cfg.Manager.Step(actions); err != nil {
			return EvalResult{}, err
		}

		for _, episode := range cfg.Manager.DrainEpisodes() {
			if len(finished) >= cfg.Episodes {
				break
			}
			finished = append(finished, episode)
			window.Observe(episode)
		}
	}

	result := EvalResult{Stats: window.Stats(), Episodes: finished}
	logger.Info().
		Int("episodes", len(finished)).
		Float64("win_rate", result.Stats.WinRate).
		Float64("mean_return", result.Stats.MeanReturn).
		Float64("mean_length", result.Stats.MeanLength).
		Msg("evaluation complete")
	return result, nil
}
