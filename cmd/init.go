package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
	"github.com/spf13/cobra"
)

var initOptions = workflow.DefaultGeneratorOptions()

var (
	initOutput string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the doc, lint and build CI workflow",
	Long: `Generates a workflow that builds the docs, lints with flake8 and black, and runs tox
across a matrix of Python versions, uploading coverage from one of them.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initOutput, "output", "o", workflow.DefaultWorkflowDir+"/ci.yml", "Output path for the workflow file")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	initCmd.Flags().StringVar(&initOptions.Name, "name", initOptions.Name, "Workflow name")
	initCmd.Flags().StringVar(&initOptions.Branch, "branch", initOptions.Branch, "Branch that triggers the workflow")
	initCmd.Flags().StringSliceVar(&initOptions.PythonVersions, "python", initOptions.PythonVersions, "Python versions in the build matrix")
	initCmd.Flags().StringVar(&initOptions.CoveragePython, "coverage-python", "", "Python version that uploads coverage (default: last --python)")
	initCmd.Flags().StringVar(&initOptions.Runner, "runs-on", initOptions.Runner, "Runner label for every job")
}

func runInit(cmd *cobra.Command, _ []string) error {
	fsys := util.DefaultFS()

	output := initOutput
	if !cmd.Flags().Changed("output") {
		output = repo.Path(initOutput)
	}

	if !initForce {
		if _, err := fsys.Stat(output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", output)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", output, err)
		}
	}

	wf, err := workflow.Generate(initOptions)
	if err != nil {
		return err
	}

	if err := workflow.WriteFile(fsys, wf, output); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", output)
	return nil
}
