package workflow

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/greboid/actrun/pkg/util"
	"gopkg.in/yaml.v3"
)

type GeneratorOptions struct {
	Name           string
	Branch         string
	DocsPython     string
	PythonVersions []string
	CoveragePython string
	Runner         string
}

func DefaultGeneratorOptions() GeneratorOptions {
	return GeneratorOptions{
		Name:           "ci",
		Branch:         "main",
		DocsPython:     "3.x",
		PythonVersions: []string{"3.6", "3.7", "3.8"},
		Runner:         "ubuntu-latest",
	}
}

// Generate builds the doc / lint / build workflow. The coverage upload is guarded on the
// newest listed interpreter unless CoveragePython overrides it.
func Generate(opts GeneratorOptions) (*Workflow, error) {
	if len(opts.PythonVersions) == 0 {
		return nil, fmt.Errorf("at least one python version is required")
	}
	if opts.CoveragePython == "" {
		opts.CoveragePython = opts.PythonVersions[len(opts.PythonVersions)-1]
	}

	workflow := createWorkflowSkeleton(opts)

	addDocJob(workflow, opts)
	addLintJob(workflow, opts)
	addBuildJob(workflow, opts)

	if err := Validate(workflow); err != nil {
		return nil, fmt.Errorf("generated workflow is invalid: %w", err)
	}
	return workflow, nil
}

func createWorkflowSkeleton(opts GeneratorOptions) *Workflow {
	branches := []string{opts.Branch}
	return &Workflow{
		Name: opts.Name,
		On: Triggers{
			EventPush:        &EventFilter{Branches: branches},
			EventPullRequest: &EventFilter{Branches: branches},
		},
	}
}

func setupPythonStep(version string) Step {
	return Step{Uses: "actions/setup-python@v2", With: StringMap{"python-version": version}}
}

func addDocJob(workflow *Workflow, opts GeneratorOptions) {
	workflow.Jobs = append(workflow.Jobs, &Job{
		ID:     "doc",
		RunsOn: StringList{opts.Runner},
		Steps: []Step{
			setupPythonStep(opts.DocsPython),
			{Uses: "actions/checkout@v2"},
			{Name: "Install sphinx", Run: "pip install sphinx"},
			{Name: "Build docs", Run: "make -C doc/ html"},
		},
	})
}

func addLintJob(workflow *Workflow, opts GeneratorOptions) {
	workflow.Jobs = append(workflow.Jobs, &Job{
		ID:     "lint",
		RunsOn: StringList{opts.Runner},
		Steps: []Step{
			setupPythonStep(opts.DocsPython),
			{Uses: "actions/checkout@v2"},
			{Name: "Lint with flake8", Run: "pip install flake8\nflake8 .\n"},
			{Name: "Check formatting with black", Run: "pip install black\nblack --check .\n"},
		},
	})
}

func addBuildJob(workflow *Workflow, opts GeneratorOptions) {
	workflow.Jobs = append(workflow.Jobs, &Job{
		ID:     "build",
		RunsOn: StringList{opts.Runner},
		Strategy: &Strategy{
			Matrix: &Matrix{
				Axes: []Axis{{Name: "python-version", Values: opts.PythonVersions}},
			},
		},
		Steps: []Step{
			setupPythonStep("${{ matrix.python-version }}"),
			{Uses: "actions/checkout@v2", With: StringMap{"lfs": "true"}},
			{Name: "Test with tox", Run: "pip install tox\ntox\n"},
			{
				Uses: "codecov/codecov-action@v1",
				If:   fmt.Sprintf("${{ matrix.python-version == '%s' }}", opts.CoveragePython),
			},
		},
	})
}

// disabledImportCheck is emitted as a comment: the import-order check stays off until
// someone decides to turn it on.
const disabledImportCheck = `      # - name: Check import order with isort
      #   run: |
      #     pip install isort
      #     isort --check .
`

func Marshal(workflow *Workflow) ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(workflow); err != nil {
		return nil, fmt.Errorf("marshaling workflow: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("marshaling workflow: %w", err)
	}

	return insertDisabledImportCheck(buf.Bytes()), nil
}

func insertDisabledImportCheck(data []byte) []byte {
	const anchor = "      - name: Check formatting with black\n"
	text := string(data)
	if !strings.Contains(text, anchor) {
		return data
	}
	return []byte(strings.Replace(text, anchor, disabledImportCheck+anchor, 1))
}

func WriteFile(fs util.WritableFS, workflow *Workflow, outputPath string) error {
	data, err := Marshal(workflow)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := fs.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("writing workflow file: %w", err)
	}

	return nil
}
