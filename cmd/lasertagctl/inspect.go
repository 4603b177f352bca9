package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newInspectCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <run-id>",
		Short: "List a run's stored checkpoints",
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

			checkpoints, err := client.Checkpoints(args[0])
			if err != nil {
				return err
			}
			if len(checkpoints) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no checkpoints for run %s\n", args[0])
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BATCH\tPROGRESS\tCREATED\tINTERRUPTED")
			for _, info := range checkpoints {
				interrupted := ""
				if info.Interrupted {
					interrupted = "yes"
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", info.BatchIndex, info.Progress, info.CreatedAt, interrupted)
			}
			return w.Flush()
		},
	}
}
