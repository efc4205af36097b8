package cmd

import (
	"testing"

	"github.com/greboid/actrun/pkg/workflow"
)

func TestEventFromFlags(t *testing.T) {
	tests := []struct {
		name       string
		event      string
		branch     string
		tag        string
		head       string
		wantBranch string
		wantTag    string
		wantAction string
	}{
		{"push branch", workflow.EventPush, "develop", "", "", "develop", "", ""},
		{"push tag", workflow.EventPush, "main", "v1.2.0", "", "", "v1.2.0", ""},
		{"pull request", workflow.EventPullRequest, "main", "", "feature", "main", "", "opened"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runEvent, runBranch, runTag, runHead, runAction = tt.event, tt.branch, tt.tag, tt.head, "opened"

			event := eventFromFlags()
			if event.Name != tt.event {
				t.Errorf("Name = %q, want %q", event.Name, tt.event)
			}
			if event.Branch != tt.wantBranch {
				t.Errorf("Branch = %q, want %q", event.Branch, tt.wantBranch)
			}
			if event.Tag != tt.wantTag {
				t.Errorf("Tag = %q, want %q", event.Tag, tt.wantTag)
			}
			if event.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", event.Action, tt.wantAction)
			}
			if event.HeadBranch != tt.head {
				t.Errorf("HeadBranch = %q, want %q", event.HeadBranch, tt.head)
			}
		})
	}
}

func TestHasJobs(t *testing.T) {
	wf, err := workflow.Generate(workflow.DefaultGeneratorOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	tests := []struct {
		ids  []string
		want bool
	}{
		{nil, true},
		{[]string{"build"}, true},
		{[]string{"lint", "doc"}, true},
		{[]string{"build", "deploy"}, false},
	}
	for _, tt := range tests {
		if got := hasJobs(wf, tt.ids); got != tt.want {
			t.Errorf("hasJobs(%v) = %v, want %v", tt.ids, got, tt.want)
		}
	}
}
