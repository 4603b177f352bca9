package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	lasertag "lasertag/pkg/lasertag"
)

func newRunsCmd(root *rootFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			// The on-disk index covers runs from earlier processes; the
			// store only holds what this backend has seen.
			entries, err := client.RunIndex(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tCREATED\tSEED\tENVS\tPROGRESS\tEPISODES\tMEAN RETURN\tWIN RATE\tDIFFICULTY\tSTOP")
			for _, entry := range entries {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d/%d\t%d\t%.3f\t%.1f%%\t%.2f\t%s\n",
					entry.RunID,
					entry.CreatedAtUTC,
					entry.Seed,
					entry.NEnvs,
					entry.Progress,
					entry.TotalTimesteps,
					entry.Episodes,
					entry.MeanReturn,
					entry.WinRate*100,
					entry.FinalDifficulty,
					entry.StopReason,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "show at most this many runs (0 = all)")

	cmd.AddCommand(newRunsShowCmd(root))
	return cmd
}

func newRunsShowCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's record, return history and episode outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			detail, ok, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("run not found: %s", args[0])
			}

			out := cmd.OutOrStdout()
			record := detail.Record
			fmt.Fprintf(out, "run:              %s\n", record.RunID)
			fmt.Fprintf(out, "created:          %s\n", record.CreatedAtUTC)
			fmt.Fprintf(out, "seed:             %d\n", record.Seed)
			fmt.Fprintf(out, "progress:         %d/%d timesteps\n", record.Progress, record.TotalTimesteps)
			fmt.Fprintf(out, "episodes:         %d\n", record.Episodes)
			fmt.Fprintf(out, "mean return:      %.3f\n", record.MeanReturn)
			fmt.Fprintf(out, "win rate:         %.1f%%\n", record.WinRate*100)
			fmt.Fprintf(out, "final difficulty: %.2f\n", record.FinalDifficulty)
			fmt.Fprintf(out, "stop reason:      %s\n", record.StopReason)

			if cfg := detail.Config; cfg != nil {
				fmt.Fprintf(out, "n_steps:          %d\n", cfg.NSteps)
				fmt.Fprintf(out, "learning rate:    %g\n", cfg.LearningRate)
				fmt.Fprintf(out, "gamma:            %g\n", cfg.Gamma)
				fmt.Fprintf(out, "ent coef:         %g\n", cfg.EntCoef)
			}

			if len(detail.History) > 0 {
				show := detail.History
				const tail = 10
				if len(show) > tail {
					fmt.Fprintf(out, "return history (last %d of %d batches):\n", tail, len(show))
					show = show[len(show)-tail:]
				} else {
					fmt.Fprintf(out, "return history (%d batches):\n", len(show))
				}
				for i, mean := range show {
					fmt.Fprintf(out, "  %3d: %.3f\n", len(detail.History)-len(show)+i+1, mean)
				}
			}

			outcomes := map[string]int{}
			for _, episode := range detail.Episodes {
				outcomes[episode.Outcome]++
			}
			if len(outcomes) > 0 {
				fmt.Fprintln(out, "episode outcomes:")
				for _, outcome := range lasertag.OutcomeOrder {
					if count, ok := outcomes[outcome]; ok {
						fmt.Fprintf(out, "  %-13s %d\n", outcome+":", count)
					}
				}
			}

			if report := detail.Eval; report != nil {
				fmt.Fprintf(out, "last eval:        %d episodes, mean return %.3f, win rate %.1f%% (%s)\n",
					report.Episodes, report.MeanReturn, report.WinRate*100, report.GeneratedAtUTC)
			}
			return nil
		},
	}
}
