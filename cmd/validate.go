package cmd

import (
	"fmt"

	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [workflow...]",
	Short: "Check workflow files for errors",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		args = []string{repo.WorkflowsDir}
	}

	fs := util.DefaultFS()
	invalid := 0
	for _, input := range args {
		paths, err := workflow.ResolvePaths(fs, input)
		if err != nil {
			return err
		}

		_, failures := workflow.LoadAll(fs, paths)
		failed := make(map[string]error, len(failures))
		for _, failure := range failures {
			failed[failure.Path] = failure.Err
		}

		for _, path := range paths {
			if err, ok := failed[path]; ok {
				fmt.Printf("FAIL %s: %v\n", path, err)
				invalid++
				continue
			}
			fmt.Printf("ok   %s\n", path)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d invalid workflow file(s)", invalid)
	}
	return nil
}
