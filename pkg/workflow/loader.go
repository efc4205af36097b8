package workflow

import (
	"bytes"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	jobIDPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)
	supportedEvents = []string{EventPush, EventPullRequest, EventWorkflowDispatch}
)

func Load(fs fs.ReadFileFS, path string) (*Workflow, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}

	wf, err := Parse(data)
	if err != nil {
		return nil, err
	}
	wf.Path = path
	return wf, nil
}

func Parse(data []byte) (*Workflow, error) {
	var wf Workflow
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&wf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := Validate(&wf); err != nil {
		return nil, err
	}

	return &wf, nil
}

func Validate(wf *Workflow) error {
	if err := validateTriggers(wf.On); err != nil {
		return err
	}

	if len(wf.Jobs) == 0 {
		return fmt.Errorf("at least one job is required in 'jobs'")
	}

	for _, job := range wf.Jobs {
		if err := validateJob(wf, job); err != nil {
			return err
		}
	}

	return nil
}

func validateTriggers(on Triggers) error {
	if len(on) == 0 {
		return fmt.Errorf("'on' must name at least one event")
	}

	for event := range on {
		if !slices.Contains(supportedEvents, event) {
			return fmt.Errorf("unsupported event %q (supported: %s)", event, strings.Join(supportedEvents, ", "))
		}
	}

	_, push := on[EventPush]
	_, pr := on[EventPullRequest]
	if !push && !pr {
		return fmt.Errorf("'on' must include %s or %s", EventPush, EventPullRequest)
	}

	for event, filter := range on {
		if filter == nil {
			continue
		}
		if len(filter.Branches) > 0 && len(filter.BranchesIgnore) > 0 {
			return fmt.Errorf("event %q: cannot specify both 'branches' and 'branches-ignore'", event)
		}
		if len(filter.Tags) > 0 && len(filter.TagsIgnore) > 0 {
			return fmt.Errorf("event %q: cannot specify both 'tags' and 'tags-ignore'", event)
		}
	}

	return nil
}

func validateJob(wf *Workflow, job *Job) error {
	if !jobIDPattern.MatchString(job.ID) {
		return fmt.Errorf("job %q: id must start with a letter or '_' and contain only alphanumerics, '-' or '_'", job.ID)
	}

	if len(job.RunsOn) == 0 || job.RunsOn[0] == "" {
		return fmt.Errorf("job %q: 'runs-on' is required", job.ID)
	}

	if job.TimeoutMinutes < 0 {
		return fmt.Errorf("job %q: 'timeout-minutes' cannot be negative", job.ID)
	}

	for _, need := range job.Needs {
		if need == job.ID {
			return fmt.Errorf("job %q: cannot need itself", job.ID)
		}
		if _, ok := wf.Job(need); !ok {
			return fmt.Errorf("job %q: needs unknown job %q", job.ID, need)
		}
	}

	if job.Strategy != nil {
		if err := validateStrategy(job.Strategy); err != nil {
			return fmt.Errorf("job %q: %w", job.ID, err)
		}
	}

	if len(job.Steps) == 0 {
		return fmt.Errorf("job %q: at least one step is required", job.ID)
	}

	stepIDs := make(map[string]bool)
	for i, step := range job.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("job %q step %d: %w", job.ID, i+1, err)
		}
		if step.ID == "" {
			continue
		}
		if stepIDs[step.ID] {
			return fmt.Errorf("job %q: duplicate step id %q", job.ID, step.ID)
		}
		stepIDs[step.ID] = true
	}

	return nil
}

func validateStrategy(strategy *Strategy) error {
	if strategy.MaxParallel < 0 {
		return fmt.Errorf("strategy 'max-parallel' cannot be negative")
	}

	if strategy.Matrix == nil {
		return nil
	}

	if strategy.Matrix.IsEmpty() {
		return fmt.Errorf("matrix must define at least one axis or include entry")
	}

	for _, axis := range strategy.Matrix.Axes {
		if len(axis.Values) == 0 {
			return fmt.Errorf("matrix axis %q has no values", axis.Name)
		}
	}

	return nil
}

func validateStep(step Step) error {
	hasUses := step.Uses != ""
	hasRun := strings.TrimSpace(step.Run) != ""

	if hasUses == hasRun {
		return fmt.Errorf("exactly one of 'uses' or 'run' is required")
	}

	if hasUses && (step.Shell != "" || step.WorkingDirectory != "") {
		return fmt.Errorf("'shell' and 'working-directory' are only valid with 'run'")
	}

	if hasUses && strings.HasPrefix(step.Uses, "@") {
		return fmt.Errorf("invalid action reference %q", step.Uses)
	}

	if step.TimeoutMinutes < 0 {
		return fmt.Errorf("'timeout-minutes' cannot be negative")
	}

	return nil
}
