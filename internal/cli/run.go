package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/me/uthread/internal/execution"
	"github.com/me/uthread/internal/store"
	"github.com/me/uthread/internal/workload"
	"github.com/me/uthread/pkg/model"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var preemptive bool
	var quantum int
	var save bool
	var trace bool

	cmd := &cobra.Command{
		Use:   "run <workload.yaml>",
		Short: "Execute a workload and print its dispatch order",
		Long: `Loads a workload file, creates its threads in file order, and dispatches
them until every thread has exited. Without --preemptive the workload's own
scheduler section decides between FCFS and round-robin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := workload.Load(args[0])
			if err != nil {
				return err
			}

			var ov execution.Overrides
			if cmd.Flags().Changed("preemptive") {
				ov.Preemptive = &preemptive
			}
			if cmd.Flags().Changed("quantum") {
				ov.Quantum = &quantum
			}

			var st store.Store
			if save {
				s, err := openStore(cmd)
				if err != nil {
					return err
				}
				defer s.Close()
				st = s
			}

			eng := execution.NewEngine(execution.Config{
				Logger:       logger,
				Store:        st,
				Dispatch:     cfg.Scheduler.Dispatch(),
				TickInterval: cfg.Scheduler.TickInterval,
			})
			res, err := eng.Execute(cmd.Context(), wl, ov)
			if err != nil {
				return fmt.Errorf("run %s: %w", wl.Name, err)
			}
			if save {
				if err := eng.Save(cmd.Context(), res); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			printRun(out, res.Run)
			if trace {
				fmt.Fprintln(out)
				printEvents(out, res.Events)
			}
			if res.Run.State != model.RunStateCompleted {
				return fmt.Errorf("run %s: %s", res.Run.State, res.Run.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&preemptive, "preemptive", false, "Round-robin with timer preemption (overrides the workload)")
	cmd.Flags().IntVar(&quantum, "quantum", 0, "Steps per time slice (overrides the workload)")
	cmd.Flags().BoolVar(&save, "save", false, "Save the run and its trace to the database")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print the dispatch trace")

	return cmd
}

func printRun(w io.Writer, run *model.Run) {
	policy := "fcfs"
	if run.Preemptive {
		policy = fmt.Sprintf("round-robin (quantum %d)", run.Quantum)
	}
	fmt.Fprintf(w, "Run:         %s\n", run.ID)
	fmt.Fprintf(w, "Workload:    %s\n", run.Workload)
	fmt.Fprintf(w, "State:       %s\n", run.State)
	fmt.Fprintf(w, "Policy:      %s\n", policy)
	fmt.Fprintf(w, "Threads:     %s\n", humanize.Comma(int64(run.Threads)))
	fmt.Fprintf(w, "Steps:       %s\n", humanize.Comma(int64(run.Steps)))
	fmt.Fprintf(w, "Switches:    %s\n", humanize.Comma(int64(run.Switches)))
	fmt.Fprintf(w, "Preemptions: %s\n", humanize.Comma(int64(run.Preemptions)))
	fmt.Fprintf(w, "Order:       %s\n", formatTids(run.Order))
	if run.Duration != "" {
		fmt.Fprintf(w, "Duration:    %s\n", run.Duration)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", run.Error)
	}
}

func formatTids(tids []model.Tid) string {
	parts := make([]string, len(tids))
	for i, t := range tids {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}
