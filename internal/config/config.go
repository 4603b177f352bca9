package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"lasertag/internal/curriculum"
	"lasertag/internal/model"
	"lasertag/internal/reward"
	"lasertag/internal/sim"
)

// OpponentConfig overrides the arena opponent. NoiseScale is a pointer so an
// absent key keeps the arena default while an explicit zero disables noise.
type OpponentConfig struct {
	Tier       string   `yaml:"tier"`
	NoiseScale *float64 `yaml:"noise_scale"`
}

// Config is the full training configuration. Files overlay Default(), so a
// config file only needs the keys it changes.
type Config struct {
	RunID              string                 `yaml:"run_id"`
	Seed               int64                  `yaml:"seed"`
	TotalTimesteps     int64                  `yaml:"total_timesteps"`
	NEnvs              int                    `yaml:"n_envs"`
	NSteps             int                    `yaml:"n_steps"`
	BatchSize          int                    `yaml:"batch_size"`
	LearningRate       float64                `yaml:"learning_rate"`
	Gamma              float64                `yaml:"gamma"`
	EntCoef            float64                `yaml:"ent_coef"`
	Difficulty         float64                `yaml:"difficulty"`
	MaxSteps           int                    `yaml:"max_steps"`
	CheckpointInterval int                    `yaml:"checkpoint_interval"`
	RewardConfig       map[string]float64     `yaml:"reward_config"`
	Curriculum         []model.CurriculumTier `yaml:"curriculum"`
	ContinueTraining   bool                   `yaml:"continue_training"`
	ModelPath          string                 `yaml:"model_path"`
	EvalEpisodes       int                    `yaml:"eval_episodes"`
	Opponent           OpponentConfig         `yaml:"opponent"`
	Store              string                 `yaml:"store"`
	DBPath             string                 `yaml:"db_path"`
	RunsDir            string                 `yaml:"runs_dir"`
	CheckpointDir      string                 `yaml:"checkpoint_dir"`
	LogLevel           string                 `yaml:"log_level"`
	LogFormat          string                 `yaml:"log_format"`
}

// Default returns the shipped configuration: four parallel arenas, the
// canonical reward weights and a three-tier curriculum.
func Default() Config {
	return Config{
		Seed:               42,
		TotalTimesteps:     1_000_000,
		NEnvs:              4,
		NSteps:             128,
		BatchSize:          512,
		LearningRate:       3e-4,
		Gamma:              0.99,
		EntCoef:            0.01,
		Difficulty:         0.1,
		MaxSteps:           1000,
		CheckpointInterval: 10,
		RewardConfig: map[string]float64{
			"base":      1.0,
			"distance":  3.0,
			"rotation":  1.5,
			"collision": 8.0,
			"laser":     5.0,
			"goal":      15.0,
			"time":      0.05,
		},
		Curriculum: []model.CurriculumTier{
			{Threshold: 0, Difficulty: 0.1},
			{Threshold: 100_000, Difficulty: 0.3},
			{Threshold: 500_000, Difficulty: 0.6},
		},
		EvalEpisodes:  10,
		Store:         "memory",
		DBPath:        "lasertag.db",
		RunsDir:       "runs",
		CheckpointDir: "checkpoints",
		LogLevel:      "info",
		LogFormat:     "console",
	}
}

// Load reads a YAML file over the defaults and validates the result. An empty
// path returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on anything training would otherwise trip over mid-run.
// Reward weights and the curriculum schedule are checked by constructing them.
func (c Config) Validate() error {
	if c.TotalTimesteps <= 0 {
		return fmt.Errorf("total_timesteps must be > 0, got %d", c.TotalTimesteps)
	}
	if c.NEnvs < 1 {
		return fmt.Errorf("n_envs must be >= 1, got %d", c.NEnvs)
	}
	if c.NSteps < 1 {
		return fmt.Errorf("n_steps must be >= 1, got %d", c.NSteps)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 || math.IsNaN(c.LearningRate) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("learning_rate must be a positive finite number, got %g", c.LearningRate)
	}
	if c.Gamma <= 0 || c.Gamma >= 1 {
		return fmt.Errorf("gamma must be inside (0, 1), got %g", c.Gamma)
	}
	if c.EntCoef < 0 || math.IsNaN(c.EntCoef) || math.IsInf(c.EntCoef, 0) {
		return fmt.Errorf("ent_coef must be >= 0, got %g", c.EntCoef)
	}
	if c.Difficulty < 0 || c.Difficulty > 1 || math.IsNaN(c.Difficulty) {
		return fmt.Errorf("difficulty must be inside [0, 1], got %g", c.Difficulty)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be >= 1, got %d", c.MaxSteps)
	}
	if c.CheckpointInterval < 1 {
		return fmt.Errorf("checkpoint_interval must be >= 1, got %d", c.CheckpointInterval)
	}
	if _, err := reward.NewConfig(c.RewardConfig); err != nil {
		return fmt.Errorf("reward_config: %w", err)
	}
	if len(c.Curriculum) > 0 {
		if _, err := curriculum.NewScheduler(c.Curriculum); err != nil {
			return fmt.Errorf("curriculum: %w", err)
		}
	}
	if c.ContinueTraining && c.ModelPath == "" && c.RunID == "" {
		return fmt.Errorf("continue_training needs model_path or run_id to locate a checkpoint")
	}
	if c.EvalEpisodes < 1 {
		return fmt.Errorf("eval_episodes must be >= 1, got %d", c.EvalEpisodes)
	}
	if !sim.ValidOpponentTier(c.Opponent.Tier) {
		return fmt.Errorf("opponent.tier %q is unknown", c.Opponent.Tier)
	}
	if c.Opponent.NoiseScale != nil {
		scale := *c.Opponent.NoiseScale
		if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
			return fmt.Errorf("opponent.noise_scale must be finite and >= 0, got %g", scale)
		}
	}
	switch c.Store {
	case "", "memory":
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("store sqlite needs db_path")
		}
	default:
		return fmt.Errorf("store %q is unknown (memory or sqlite)", c.Store)
	}
	if c.RunsDir == "" {
		return fmt.Errorf("runs_dir is required")
	}
	if c.CheckpointDir == "" {
		return fmt.Errorf("checkpoint_dir is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format %q is unknown (console or json)", c.LogFormat)
	}
	return nil
}

// ContinueFrom maps the resume keys onto a checkpoint reference: an explicit
// model path wins, otherwise the run's latest checkpoint.
func (c Config) ContinueFrom() string {
	if !c.ContinueTraining {
		return ""
	}
	if c.ModelPath != "" {
		return c.ModelPath
	}
	return "latest"
}
