package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lasertag/internal/config"
	lasertag "lasertag/pkg/lasertag"
)

func newTrainCmd(root *rootFlags) *cobra.Command {
	var (
		runID              string
		seed               int64
		totalTimesteps     int64
		nEnvs              int
		nSteps             int
		batchSize          int
		maxSteps           int
		checkpointInterval int
		learningRate       float64
		gamma              float64
		entCoef            float64
		difficulty         float64
		continueTraining   bool
		modelPath          string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training run to its timestep budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("run-id") {
				cfg.RunID = runID
			}
			if flags.Changed("seed") {
				cfg.Seed = seed
			}
			if flags.Changed("total-timesteps") {
				cfg.TotalTimesteps = totalTimesteps
			}
			if flags.Changed("n-envs") {
				cfg.NEnvs = nEnvs
			}
			if flags.Changed("n-steps") {
				cfg.NSteps = nSteps
			}
			if flags.Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if flags.Changed("max-steps") {
				cfg.MaxSteps = maxSteps
			}
			if flags.Changed("checkpoint-interval") {
				cfg.CheckpointInterval = checkpointInterval
			}
			if flags.Changed("learning-rate") {
				cfg.LearningRate = learningRate
			}
			if flags.Changed("gamma") {
				cfg.Gamma = gamma
			}
			if flags.Changed("ent-coef") {
				cfg.EntCoef = entCoef
			}
			if flags.Changed("difficulty") {
				cfg.Difficulty = difficulty
			}
			if flags.Changed("continue") {
				cfg.ContinueTraining = continueTraining
			}
			if flags.Changed("model-path") {
				cfg.ModelPath = modelPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Train(cmd.Context(), trainRequest(cfg))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:              %s\n", summary.RunID)
			fmt.Fprintf(out, "artifacts:        %s\n", summary.RunDir)
			fmt.Fprintf(out, "progress:         %d timesteps over %d batches\n", summary.Progress, summary.Batches)
			fmt.Fprintf(out, "episodes:         %d\n", summary.Episodes)
			fmt.Fprintf(out, "mean return:      %.3f\n", summary.MeanReturn)
			fmt.Fprintf(out, "win rate:         %.1f%%\n", summary.WinRate*100)
			fmt.Fprintf(out, "final difficulty: %.2f\n", summary.FinalDifficulty)
			fmt.Fprintf(out, "stop reason:      %s\n", summary.StopReason)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (generated when empty)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base random seed")
	cmd.Flags().Int64Var(&totalTimesteps, "total-timesteps", 0, "timestep budget for the run")
	cmd.Flags().IntVar(&nEnvs, "n-envs", 0, "parallel environment instances")
	cmd.Flags().IntVar(&nSteps, "n-steps", 0, "steps per instance per batch")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "optimizer minibatch size")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "episode step limit before truncation")
	cmd.Flags().IntVar(&checkpointInterval, "checkpoint-interval", 0, "batches between checkpoints")
	cmd.Flags().Float64Var(&learningRate, "learning-rate", 0, "optimizer learning rate")
	cmd.Flags().Float64Var(&gamma, "gamma", 0, "discount factor")
	cmd.Flags().Float64Var(&entCoef, "ent-coef", 0, "entropy coefficient")
	cmd.Flags().Float64Var(&difficulty, "difficulty", 0, "initial difficulty when no curriculum is set")
	cmd.Flags().BoolVar(&continueTraining, "continue", false, "resume from a checkpoint")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "checkpoint file to resume from (defaults to the run's latest)")
	return cmd
}

// trainRequest maps the validated configuration onto a facade request.
func trainRequest(cfg config.Config) lasertag.TrainRequest {
	schedule := make([]lasertag.CurriculumTier, 0, len(cfg.Curriculum))
	for _, tier := range cfg.Curriculum {
		schedule = append(schedule, lasertag.CurriculumTier{Threshold: tier.Threshold, Difficulty: tier.Difficulty})
	}
	return lasertag.TrainRequest{
		RunID:              cfg.RunID,
		Seed:               cfg.Seed,
		TotalTimesteps:     cfg.TotalTimesteps,
		NEnvs:              cfg.NEnvs,
		NSteps:             cfg.NSteps,
		BatchSize:          cfg.BatchSize,
		MaxSteps:           cfg.MaxSteps,
		CheckpointInterval: cfg.CheckpointInterval,
		LearningRate:       cfg.LearningRate,
		Gamma:              cfg.Gamma,
		EntCoef:            cfg.EntCoef,
		Difficulty:         cfg.Difficulty,
		Curriculum:         schedule,
		RewardWeights:      cfg.RewardConfig,
		Opponent:           opponentOverride(cfg),
		Continue:           cfg.ContinueTraining,
		ModelPath:          cfg.ModelPath,
	}
}
