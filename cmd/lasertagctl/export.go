package main

import (
	"fmt"

	"github.com/spf13/cobra"

	lasertag "lasertag/pkg/lasertag"
)

func newExportCmd(root *rootFlags) *cobra.Command {
	var (
		runID  string
		latest bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy a run's artifact directory for sharing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" && !latest {
				return fmt.Errorf("pass --run-id or --latest")
			}
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Export(cmd.Context(), lasertag.ExportRequest{
				RunID:  runID,
				Latest: latest,
				OutDir: outDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run %s to %s\n", summary.RunID, summary.Directory)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "run to export")
	cmd.Flags().BoolVar(&latest, "latest", false, "export the most recent run")
	cmd.Flags().StringVar(&outDir, "out", "", "destination directory (defaults to exports/)")
	return cmd
}
