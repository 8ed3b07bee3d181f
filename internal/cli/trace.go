package cli

import (
	"fmt"
	"io"

	"github.com/me/uthread/pkg/model"
	"github.com/spf13/cobra"
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <run-id>",
		Short: "Print the dispatch trace of a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			run, err := st.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			if run == nil {
				return fmt.Errorf("run %s not found", args[0])
			}
			events, err := st.ListEvents(cmd.Context(), run.ID)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			out := cmd.OutOrStdout()
			printRun(out, run)
			fmt.Fprintln(out)
			printEvents(out, events)
			return nil
		},
	}
}

func printEvents(w io.Writer, events []model.Event) {
	fmt.Fprintf(w, "%5s  %6s  %-9s  %5s  %6s  %s\n", "SEQ", "STEP", "KIND", "TID", "TARGET", "READY")
	for _, ev := range events {
		target := ""
		if ev.Target != model.TidNone {
			target = ev.Target.String()
		}
		tid := ""
		if ev.Tid != model.TidNone {
			tid = ev.Tid.String()
		}
		fmt.Fprintf(w, "%5d  %6d  %-9s  %5s  %6s  [%s]\n", ev.Seq, ev.Step, ev.Kind, tid, target, formatTids(ev.Ready))
	}
}
