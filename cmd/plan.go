package cmd

import (
	"fmt"
	"os"

	"github.com/greboid/actrun/pkg/plan"
	"github.com/spf13/cobra"
)

var (
	planDot  bool
	planJobs []string
)

var planCmd = &cobra.Command{
	Use:   "plan [workflow]",
	Short: "Show the job instances a workflow expands into",
	Long: `Prints every job instance grouped into layers that run in parallel. With --dot the
job dependency graph is printed in Graphviz DOT format instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().BoolVar(&planDot, "dot", false, "Print the job graph in DOT format")
	planCmd.Flags().StringSliceVar(&planJobs, "job", nil, "Only plan these jobs and the jobs they need")
}

func runPlan(_ *cobra.Command, args []string) error {
	input := ""
	if len(args) > 0 {
		input = args[0]
	}

	workflows, err := loadWorkflows(input)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	for i, wf := range workflows {
		if !hasJobs(wf, planJobs) {
			continue
		}
		p, err := plan.Build(wf, plan.Options{Jobs: planJobs})
		if err != nil {
			return fmt.Errorf("planning %s: %w", wf.DisplayName(), err)
		}

		if i > 0 {
			fmt.Println()
		}
		if planDot {
			err = p.Graph.DOT(os.Stdout)
		} else {
			err = p.Write(os.Stdout)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
