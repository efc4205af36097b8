package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/greboid/actrun/pkg/history"
	"github.com/greboid/actrun/pkg/util"
	"github.com/spf13/cobra"
)

var (
	runsLimit int
	runsKeep  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect recorded workflow runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		runs, err := historyStore().List()
		if err != nil {
			return err
		}
		if runsLimit > 0 && len(runs) > runsLimit {
			runs = runs[:runsLimit]
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tWORKFLOW\tEVENT\tCONCLUSION\tSTARTED\tDURATION")
		for _, run := range runs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				run.ID,
				run.Workflow,
				run.Event.String(),
				run.Conclusion,
				run.Started.Local().Format(time.DateTime),
				run.Finished.Sub(run.Started).Round(time.Second),
			)
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the jobs and failed steps of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		run, err := historyStore().Get(args[0])
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		printRunSummary(os.Stdout, run)
		return nil
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest runs",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		removed, err := historyStore().Prune(runsKeep)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d run(s)\n", removed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsPruneCmd)

	runsListCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	runsPruneCmd.Flags().IntVar(&runsKeep, "keep", 50, "Number of runs to keep")
}

func historyStore() *history.Store {
	return history.NewStore(settings.History, util.DefaultFS())
}
