package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	lasertag "lasertag/pkg/lasertag"
)

func newEvalCmd(root *rootFlags) *cobra.Command {
	var (
		runID      string
		checkpoint string
		latest     bool
		episodes   int
		nEnvs      int
		maxSteps   int
		seed       int64
		difficulty float64
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Roll a policy out without learning and report episode statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("episodes") {
				episodes = cfg.EvalEpisodes
			}
			if !cmd.Flags().Changed("n-envs") {
				nEnvs = cfg.NEnvs
			}
			if !cmd.Flags().Changed("max-steps") {
				maxSteps = cfg.MaxSteps
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Seed
			}
			if !cmd.Flags().Changed("difficulty") {
				difficulty = cfg.Difficulty
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Eval(cmd.Context(), lasertag.EvalRequest{
				RunID:         runID,
				Checkpoint:    checkpoint,
				Latest:        latest,
				Episodes:      episodes,
				NEnvs:         nEnvs,
				MaxSteps:      maxSteps,
				Seed:          seed,
				Difficulty:    difficulty,
				RewardWeights: cfg.RewardConfig,
				Opponent:      opponentOverride(cfg),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if summary.RunID != "" {
				fmt.Fprintf(out, "run:         %s\n", summary.RunID)
			}
			fmt.Fprintf(out, "episodes:    %d\n", summary.Episodes)
			fmt.Fprintf(out, "mean return: %.3f (std %.3f)\n", summary.MeanReturn, summary.StdReturn)
			fmt.Fprintf(out, "mean length: %.1f steps\n", summary.MeanLength)
			fmt.Fprintf(out, "win rate:    %.1f%%\n", summary.WinRate*100)

			outcomes := make([]string, 0, len(summary.Outcomes))
			for outcome := range summary.Outcomes {
				outcomes = append(outcomes, outcome)
			}
			sort.Strings(outcomes)
			for _, outcome := range outcomes {
				fmt.Fprintf(out, "  %-13s %d\n", outcome+":", summary.Outcomes[outcome])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run whose checkpoint to evaluate")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "checkpoint file to evaluate")
	cmd.Flags().BoolVar(&latest, "latest", false, "evaluate the run's latest checkpoint")
	cmd.Flags().IntVar(&episodes, "episodes", 0, "episodes to evaluate")
	cmd.Flags().IntVar(&nEnvs, "n-envs", 0, "parallel environment instances")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "episode step limit before truncation")
	cmd.Flags().Int64Var(&seed, "seed", 0, "evaluation seed")
	cmd.Flags().Float64Var(&difficulty, "difficulty", 0, "arena difficulty")
	return cmd
}
