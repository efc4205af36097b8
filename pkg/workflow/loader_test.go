package workflow

import (
	"strings"
	"testing"

	"github.com/greboid/actrun/pkg/util"
)

const canonicalWorkflow = `name: ci

on:
  push:
    branches:
      - main
  pull_request:
    branches:
      - main

jobs:
  doc:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/setup-python@v2
        with:
          python-version: "3.x"
      - uses: actions/checkout@v2
      - name: Install sphinx
        run: pip install sphinx
      - name: Build docs
        run: make -C doc/ html

  lint:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/setup-python@v2
        with:
          python-version: "3.x"
      - uses: actions/checkout@v2
      - name: Lint with flake8
        run: |
          pip install flake8
          flake8 .
      # - name: Check import order with isort
      #   run: |
      #     pip install isort
      #     isort --check .
      - name: Check formatting with black
        run: |
          pip install black
          black --check .

  build:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        python-version: [3.6, 3.7, 3.8]
    steps:
      - uses: actions/setup-python@v2
        with:
          python-version: ${{ matrix.python-version }}
      - uses: actions/checkout@v2
        with:
          lfs: true
      - name: Test with tox
        run: |
          pip install tox
          tox
      - uses: codecov/codecov-action@v1
        if: ${{ matrix.python-version == '3.8' }}
`

func checkError(t *testing.T, err error, expectError bool, errorMsg string) {
	t.Helper()
	if expectError {
		if err == nil {
			t.Errorf("expected error containing %q, got nil", errorMsg)
			return
		}
		if errorMsg != "" && !strings.Contains(err.Error(), errorMsg) {
			t.Errorf("expected error containing %q, got %q", errorMsg, err.Error())
		}
	} else {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
}

func TestParseCanonicalWorkflow(t *testing.T) {
	wf, err := Parse([]byte(canonicalWorkflow))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if wf.Name != "ci" {
		t.Errorf("wf.Name = %q, want \"ci\"", wf.Name)
	}

	if len(wf.On) != 2 {
		t.Fatalf("len(wf.On) = %d, want 2", len(wf.On))
	}
	for _, event := range []string{EventPush, EventPullRequest} {
		filter, ok := wf.On[event]
		if !ok || filter == nil {
			t.Fatalf("wf.On[%q] missing", event)
		}
		if len(filter.Branches) != 1 || filter.Branches[0] != "main" {
			t.Errorf("wf.On[%q].Branches = %v, want [main]", event, filter.Branches)
		}
	}

	var ids []string
	for _, job := range wf.Jobs {
		ids = append(ids, job.ID)
	}
	if strings.Join(ids, ",") != "doc,lint,build" {
		t.Errorf("job order = %v, want [doc lint build]", ids)
	}

	lint, _ := wf.Job("lint")
	if len(lint.Steps) != 4 {
		t.Errorf("len(lint.Steps) = %d, want 4 (isort stays commented out)", len(lint.Steps))
	}

	build, _ := wf.Job("build")
	axis, ok := build.Strategy.Matrix.Axis("python-version")
	if !ok {
		t.Fatal("build matrix has no python-version axis")
	}
	if strings.Join(axis.Values, ",") != "3.6,3.7,3.8" {
		t.Errorf("python-version values = %v, want [3.6 3.7 3.8]", axis.Values)
	}

	checkout := build.Steps[1]
	if checkout.With["lfs"] != "true" {
		t.Errorf("checkout lfs = %q, want \"true\"", checkout.With["lfs"])
	}

	upload := build.Steps[3]
	if upload.If != "${{ matrix.python-version == '3.8' }}" {
		t.Errorf("upload.If = %q", upload.If)
	}
}

func TestParseKeepsMatrixLiterals(t *testing.T) {
	wf, err := Parse([]byte(`on: push
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        python: [3.9, 3.10, "3.11"]
        os: [linux]
    steps:
      - run: echo hi
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	matrix := wf.Jobs[0].Strategy.Matrix
	if len(matrix.Axes) != 2 || matrix.Axes[0].Name != "python" || matrix.Axes[1].Name != "os" {
		t.Fatalf("axes = %+v, want python then os", matrix.Axes)
	}
	if got := strings.Join(matrix.Axes[0].Values, ","); got != "3.9,3.10,3.11" {
		t.Errorf("python values = %q, want \"3.9,3.10,3.11\"", got)
	}
}

func TestParseTriggerForms(t *testing.T) {
	tests := []struct {
		name   string
		on     string
		events []string
	}{
		{name: "scalar", on: "push", events: []string{EventPush}},
		{name: "sequence", on: "[push, pull_request]", events: []string{EventPush, EventPullRequest}},
		{name: "mapping with null", on: "\n  push:\n  workflow_dispatch:", events: []string{EventPush, EventWorkflowDispatch}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "on: " + tt.on + "\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps:\n      - run: echo\n"
			wf, err := Parse([]byte(data))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(wf.On) != len(tt.events) {
				t.Errorf("len(On) = %d, want %d", len(wf.On), len(tt.events))
			}
			for _, event := range tt.events {
				if _, ok := wf.On[event]; !ok {
					t.Errorf("On missing %q", event)
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	job := "\n    runs-on: ubuntu-latest\n    steps:\n      - run: echo\n"
	tests := []struct {
		name     string
		data     string
		errorMsg string
	}{
		{
			name:     "no triggers",
			data:     "jobs:\n  a:" + job,
			errorMsg: "'on' must name at least one event",
		},
		{
			name:     "only dispatch",
			data:     "on: workflow_dispatch\njobs:\n  a:" + job,
			errorMsg: "must include push or pull_request",
		},
		{
			name:     "unsupported event",
			data:     "on: [push, release]\njobs:\n  a:" + job,
			errorMsg: "unsupported event \"release\"",
		},
		{
			name:     "duplicate job",
			data:     "on: push\njobs:\n  a:" + job + "  a:" + job,
			errorMsg: "duplicate job \"a\"",
		},
		{
			name:     "unknown job key",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    colour: red\n    steps:\n      - run: echo\n",
			errorMsg: "colour",
		},
		{
			name:     "no jobs",
			data:     "on: push\njobs: {}\n",
			errorMsg: "at least one job",
		},
		{
			name:     "missing runs-on",
			data:     "on: push\njobs:\n  a:\n    steps:\n      - run: echo\n",
			errorMsg: "'runs-on' is required",
		},
		{
			name:     "step with uses and run",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - uses: actions/checkout@v2\n        run: echo\n",
			errorMsg: "exactly one of 'uses' or 'run'",
		},
		{
			name:     "empty step",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - name: nothing\n",
			errorMsg: "exactly one of 'uses' or 'run'",
		},
		{
			name:     "unknown need",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    needs: b\n    steps:\n      - run: echo\n",
			errorMsg: "needs unknown job \"b\"",
		},
		{
			name:     "self need",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    needs: [a]\n    steps:\n      - run: echo\n",
			errorMsg: "cannot need itself",
		},
		{
			name:     "empty matrix axis",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    strategy:\n      matrix:\n        py: []\n    steps:\n      - run: echo\n",
			errorMsg: "matrix axis \"py\" has no values",
		},
		{
			name:     "duplicate step id",
			data:     "on: push\njobs:\n  a:\n    runs-on: x\n    steps:\n      - id: s\n        run: echo\n      - id: s\n        run: echo\n",
			errorMsg: "duplicate step id \"s\"",
		},
		{
			name:     "invalid job id",
			data:     "on: push\njobs:\n  1abc:" + job,
			errorMsg: "id must start with a letter",
		},
		{
			name:     "branches and branches-ignore",
			data:     "on:\n  push:\n    branches: [main]\n    branches-ignore: [dev]\njobs:\n  a:" + job,
			errorMsg: "cannot specify both 'branches' and 'branches-ignore'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			checkError(t, err, true, tt.errorMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	fs := util.NewTestFS()
	if err := fs.WriteFile(".github/workflows/ci.yml", []byte(canonicalWorkflow), 0644); err != nil {
		t.Fatal(err)
	}

	wf, err := Load(fs, ".github/workflows/ci.yml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if wf.Path != ".github/workflows/ci.yml" {
		t.Errorf("wf.Path = %q", wf.Path)
	}

	_, err = Load(fs, "missing.yml")
	checkError(t, err, true, "reading workflow file")
}

func TestStepDisplayName(t *testing.T) {
	tests := []struct {
		step Step
		want string
	}{
		{Step{Name: "Build", Run: "make"}, "Build"},
		{Step{Uses: "actions/checkout@v2"}, "actions/checkout@v2"},
		{Step{Run: "pip install tox\ntox\n"}, "pip install tox"},
	}

	for _, tt := range tests {
		if got := tt.step.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}
