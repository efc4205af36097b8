package workflow

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"github.com/greboid/actrun/pkg/util"
)

func newWorkflowFS(t *testing.T, files map[string]string) *util.TestFS {
	t.Helper()
	testFS := util.NewTestFS()
	for name, content := range files {
		if err := testFS.WriteFile(name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return testFS
}

func TestFindWorkflowFiles(t *testing.T) {
	testFS := newWorkflowFS(t, map[string]string{
		".github/workflows/ci.yml":          canonicalWorkflow,
		".github/workflows/release.yaml":    canonicalWorkflow,
		".github/workflows/README.md":       "docs",
		".github/workflows/nested/skip.yml": canonicalWorkflow,
	})

	files, err := FindWorkflowFiles(testFS, ".github/workflows")
	if err != nil {
		t.Fatalf("FindWorkflowFiles() error = %v", err)
	}

	want := []string{".github/workflows/ci.yml", ".github/workflows/release.yaml"}
	if strings.Join(files, ",") != strings.Join(want, ",") {
		t.Errorf("FindWorkflowFiles() = %v, want %v", files, want)
	}
}

func TestResolvePaths(t *testing.T) {
	testFS := newWorkflowFS(t, map[string]string{
		".github/workflows/ci.yml": canonicalWorkflow,
		"other/flow.yml":           canonicalWorkflow,
		"empty/README":             "",
	})

	tests := []struct {
		name     string
		input    string
		want     []string
		errorMsg string
	}{
		{name: "default directory", input: "", want: []string{".github/workflows/ci.yml"}},
		{name: "explicit file", input: "other/flow.yml", want: []string{"other/flow.yml"}},
		{name: "directory", input: "other", want: []string{"other/flow.yml"}},
		{name: "missing", input: "nope.yml", errorMsg: "accessing path"},
		{name: "directory without workflows", input: "empty", errorMsg: "no workflow files found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePaths(testFS, tt.input)
			if tt.errorMsg != "" {
				checkError(t, err, true, tt.errorMsg)
				return
			}
			if err != nil {
				t.Fatalf("ResolvePaths() error = %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ResolvePaths() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadAll(t *testing.T) {
	testFS := newWorkflowFS(t, map[string]string{
		"good.yml": canonicalWorkflow,
		"bad.yml":  "on: push\njobs: {}\n",
	})

	workflows, failures := LoadAll(testFS, []string{"good.yml", "bad.yml", "missing.yml"})

	if len(workflows) != 1 || workflows[0].Path != "good.yml" {
		t.Errorf("LoadAll() workflows = %v, want [good.yml]", workflows)
	}
	if len(failures) != 2 {
		t.Fatalf("len(failures) = %d, want 2", len(failures))
	}
	if failures[0].Path != "bad.yml" || !strings.Contains(failures[0].Error(), "at least one job") {
		t.Errorf("failures[0] = %v", failures[0])
	}
	if !errors.Is(failures[1], fs.ErrNotExist) {
		t.Errorf("failures[1] = %v, want ErrNotExist", failures[1])
	}
}
