package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/me/uthread/pkg/model"
	"github.com/spf13/cobra"
)

func newRunsCmd() *cobra.Command {
	var limit, offset int
	var state string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List saved runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := model.ListOptions{Limit: limit, Offset: offset, State: model.RunState(state)}
			opts.Clamp()
			runs, total, err := st.ListRuns(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-44s  %-10s  %-20s  %8s  %s\n", "ID", "STATE", "WORKLOAD", "STEPS", "CREATED")
			fmt.Fprintf(out, "%-44s  %-10s  %-20s  %8s  %s\n", "--", "-----", "--------", "-----", "-------")
			for _, run := range runs {
				fmt.Fprintf(out, "%-44s  %-10s  %-20s  %8s  %s\n",
					run.ID, run.State, run.Workload, humanize.Comma(int64(run.Steps)), humanize.Time(run.CreatedAt))
			}

			if pg := model.NewPagination(opts, total); pg.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Runs to skip")
	cmd.Flags().StringVar(&state, "state", "", "Filter by state (COMPLETED, CANCELLED, FAILED)")

	return cmd
}
