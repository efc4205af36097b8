package graph

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/greboid/actrun/pkg/workflow"
)

func jobs(specs ...string) *workflow.Workflow {
	wf := &workflow.Workflow{}
	for _, spec := range specs {
		id, needs, _ := strings.Cut(spec, ":")
		job := &workflow.Job{ID: id}
		if needs != "" {
			job.Needs = strings.Split(needs, ",")
		}
		wf.Jobs = append(wf.Jobs, job)
	}
	return wf
}

func TestTopologicalSort(t *testing.T) {
	tests := []struct {
		name       string
		workflow   *workflow.Workflow
		wantLayers string
	}{
		{
			name:       "independent jobs keep declaration order",
			workflow:   jobs("doc", "lint", "build"),
			wantLayers: "[doc lint build]",
		},
		{
			name:       "linear dependencies",
			workflow:   jobs("deploy:build", "build:lint", "lint"),
			wantLayers: "[lint] [build] [deploy]",
		},
		{
			name:       "diamond dependency",
			workflow:   jobs("setup", "test:setup", "docs:setup", "release:test,docs"),
			wantLayers: "[setup] [test docs] [release]",
		},
		{
			name:       "duplicate need",
			workflow:   jobs("a", "b:a,a"),
			wantLayers: "[a] [b]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.workflow)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			layers, err := g.TopologicalSort()
			if err != nil {
				t.Fatalf("TopologicalSort() error = %v", err)
			}

			var got []string
			for _, layer := range layers {
				got = append(got, "["+strings.Join(layer, " ")+"]")
			}
			if strings.Join(got, " ") != tt.wantLayers {
				t.Errorf("TopologicalSort() = %s, want %s", strings.Join(got, " "), tt.wantLayers)
			}
		})
	}
}

func TestBuildCycles(t *testing.T) {
	tests := []struct {
		name      string
		workflow  *workflow.Workflow
		wantChain string
	}{
		{
			name:      "self-cycle",
			workflow:  jobs("app:app"),
			wantChain: "app -> app",
		},
		{
			name:      "two-node cycle",
			workflow:  jobs("a:b", "b:a"),
			wantChain: "a -> b -> a",
		},
		{
			name:      "three-node cycle with independent job",
			workflow:  jobs("free", "x:z", "y:x", "z:y"),
			wantChain: "x -> z -> y -> x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.workflow)

			var cycleErr *CircularDependencyError
			if !errors.As(err, &cycleErr) {
				t.Fatalf("Build() error = %v, want CircularDependencyError", err)
			}
			if got := strings.Join(cycleErr.Chain, " -> "); got != tt.wantChain {
				t.Errorf("Chain = %s, want %s", got, tt.wantChain)
			}
		})
	}
}

func TestBuildUnknownNeed(t *testing.T) {
	_, err := Build(jobs("a:ghost"))
	if err == nil || !strings.Contains(err.Error(), "needs unknown job \"ghost\"") {
		t.Errorf("Build() error = %v", err)
	}
}

func TestCircularDependencyError(t *testing.T) {
	err := &CircularDependencyError{Chain: []string{"app1", "app2", "app1"}}
	want := "jobs need each other in a cycle: app1 -> app2 -> app1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDOT(t *testing.T) {
	wf := jobs("lint", "build:lint")
	wf.Jobs[1].Name = "Build and test"

	g, err := Build(wf)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := g.DOT(&buf); err != nil {
		t.Fatalf("DOT() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"digraph", `"lint" -> "build"`, "Build and test", "rankdir"} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT() output missing %q:\n%s", want, out)
		}
	}

	if needs := g.Needs("build"); len(needs) != 1 || needs[0] != "lint" {
		t.Errorf("Needs(build) = %v", needs)
	}
}
