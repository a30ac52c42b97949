package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aoyama-lab/proximity-cli/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect batch run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded batch runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("run history is disabled (store.driver = none)")
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: runsLimit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs recorded.")
			return nil
		}
		return formatRunsList(os.Stdout, runs)
	},
}

func formatRunsList(out io.Writer, runs []store.BatchRun) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tSTATUS\tOK\tSKIP\tFAIL\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Mode, r.Status, r.Completed, r.Skipped, r.Failed,
			r.StartedAt.Local().Format(time.RFC3339))
	}
	return w.Flush()
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the per-unit outcomes of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			return eris.New("run history is disabled (store.driver = none)")
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		units, err := st.ListUnits(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show units")
		}

		return formatRunDetail(os.Stdout, run, units)
	},
}

func formatRunDetail(out io.Writer, run *store.BatchRun, units []store.UnitRecord) error {
	fmt.Fprintf(out, "Run %s (%s): %s, %d completed / %d skipped / %d failed\n",
		run.ID, run.Mode, run.Status, run.Completed, run.Skipped, run.Failed)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tSTATUS\tWORKSPACE\tERROR")
	for _, u := range units {
		errMsg := u.Error
		if r := []rune(errMsg); len(r) > 120 {
			errMsg = string(r[:120]) + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.Name, u.Status, u.Workspace, errMsg)
	}
	return w.Flush()
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "max runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}
