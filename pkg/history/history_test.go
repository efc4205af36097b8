package history

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/greboid/actrun/pkg/runner"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/util"
)

func newRun(started time.Time, conclusion runner.Conclusion) *runner.RunResult {
	return &runner.RunResult{
		ID:         uuid.NewString(),
		Workflow:   "ci",
		Path:       ".github/workflows/ci.yml",
		Event:      trigger.Event{Name: "push", Branch: "main"},
		Conclusion: conclusion,
		Started:    started,
		Finished:   started.Add(time.Minute),
		Jobs: []*runner.JobResult{{
			Key:        "build/1",
			JobID:      "build",
			Name:       "build (3.6)",
			Matrix:     map[string]string{"python-version": "3.6"},
			Conclusion: conclusion,
			Steps: []*runner.StepResult{{
				Name:       "Test with tox",
				Outcome:    conclusion,
				Conclusion: conclusion,
				ExitCode:   1,
			}},
		}},
	}
}

func TestSaveAndGet(t *testing.T) {
	store := NewStore("history", util.NewTestFS())
	run := newRun(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), runner.Failure)

	if err := store.Save(run); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(run.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Conclusion != runner.Failure {
		t.Errorf("Conclusion = %q, want %q", got.Conclusion, runner.Failure)
	}
	if got.Event.Branch != "main" {
		t.Errorf("Event.Branch = %q, want %q", got.Event.Branch, "main")
	}
	if !got.Started.Equal(run.Started) {
		t.Errorf("Started = %v, want %v", got.Started, run.Started)
	}
	job, ok := got.Job("build/1")
	if !ok {
		t.Fatal("Job(build/1) not found")
	}
	if job.Matrix["python-version"] != "3.6" {
		t.Errorf("Matrix = %v", job.Matrix)
	}
	if job.Steps[0].ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", job.Steps[0].ExitCode)
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewStore("history", util.NewTestFS())

	tests := []struct {
		name string
		id   string
	}{
		{"unknown id", uuid.NewString()},
		{"not a run id", "../config"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Get(tt.id)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(%q) error = %v, want ErrNotFound", tt.id, err)
			}
		})
	}
}

func TestSaveRejectsInvalidID(t *testing.T) {
	store := NewStore("history", util.NewTestFS())
	run := newRun(time.Now(), runner.Success)
	run.ID = "../../etc/passwd"

	if err := store.Save(run); err == nil {
		t.Error("Save() expected error for invalid id")
	}
}

func TestList(t *testing.T) {
	fs := util.NewTestFS()
	store := NewStore("history", fs)

	runs, err := store.List()
	if err != nil {
		t.Fatalf("List() on empty store error = %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("List() on empty store = %d runs, want 0", len(runs))
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	oldest := newRun(base, runner.Success)
	newest := newRun(base.Add(2*time.Hour), runner.Failure)
	middle := newRun(base.Add(time.Hour), runner.Success)
	for _, run := range []*runner.RunResult{oldest, newest, middle} {
		if err := store.Save(run); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	_ = fs.WriteFile("history/notes.txt", []byte("ignored"), 0644)

	runs, err = store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []string{newest.ID, middle.ID, oldest.ID}
	if len(runs) != len(want) {
		t.Fatalf("List() = %d runs, want %d", len(runs), len(want))
	}
	for i, id := range want {
		if runs[i].ID != id {
			t.Errorf("List()[%d] = %s, want %s", i, runs[i].ID, id)
		}
	}
}

func TestPrune(t *testing.T) {
	store := NewStore("history", util.NewTestFS())

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 5 {
		run := newRun(base.Add(time.Duration(i)*time.Hour), runner.Success)
		ids = append(ids, run.ID)
		if err := store.Save(run); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	removed, err := store.Prune(2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune() removed %d, want 3", removed)
	}

	runs, _ := store.List()
	if len(runs) != 2 || runs[0].ID != ids[4] || runs[1].ID != ids[3] {
		t.Errorf("after Prune(2) kept %d runs, want the two newest", len(runs))
	}

	if _, err := store.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(pruned) error = %v, want ErrNotFound", err)
	}

	removed, err = store.Prune(10)
	if err != nil || removed != 0 {
		t.Errorf("Prune(10) = %d, %v, want 0, nil", removed, err)
	}
}
