package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/greboid/actrun/pkg/environment"
	"github.com/greboid/actrun/pkg/expr"
	"github.com/greboid/actrun/pkg/plan"
	"github.com/greboid/actrun/pkg/tracing"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
)

type instanceContext struct {
	workflow *workflow.Workflow
	needs    map[string]Conclusion
	index    int
	total    int
}

// jobState is what earlier steps of an instance leave behind for later ones.
type jobState struct {
	run       *RunResult
	instance  *plan.Instance
	workspace environment.Workspace
	env       map[string]string
	path      []string
	steps     map[string]any
	base      *expr.Context
	defaults  workflow.RunDefaults
	failed    bool
}

func (o *Orchestrator) runInstance(ctx context.Context, run *RunResult, instance *plan.Instance, ictx instanceContext) *JobResult {
	job := instance.Job
	result := &JobResult{
		Key:     instance.Key,
		JobID:   instance.JobID,
		Name:    instance.Name,
		Matrix:  instance.Matrix.Values,
		Started: time.Now(),
	}

	ctx, span := tracing.StartSpan(ctx, "job "+instance.Name, map[string]string{"job": instance.Key})
	defer func() {
		result.Duration = time.Since(result.Started)
		span.EndWithStatus(string(result.Conclusion))
		slog.Info("Job finished",
			"run_id", run.ID,
			"job", instance.Name,
			"conclusion", result.Conclusion,
			"duration", result.Duration.Round(time.Millisecond),
		)
	}()

	base := o.baseContext(run, instance, ictx)

	status := expr.StatusSuccess
	for _, need := range ictx.needs {
		if need != Success {
			status = expr.StatusFailure
		}
	}
	if ctx.Err() != nil {
		status = expr.StatusCancelled
	}
	base.Status = status

	shouldRun, err := expr.EvaluateCondition(job.If, base)
	if err != nil {
		o.failJob(result, FailureExpression, fmt.Errorf("evaluating job condition: %w", err))
		return result
	}
	if !shouldRun {
		slog.Info("Skipping job", "run_id", run.ID, "job", instance.Name, "if", job.If)
		result.Conclusion = Skipped
		if status == expr.StatusCancelled {
			result.Conclusion = Cancelled
		}
		result.Steps = skippedSteps(job)
		return result
	}

	timeout := o.opts.JobTimeout
	if job.TimeoutMinutes > 0 {
		timeout = time.Duration(job.TimeoutMinutes) * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("Starting job",
		"run_id", run.ID,
		"job", instance.Name,
		"progress", fmt.Sprintf("[%d/%d]", ictx.index+1, ictx.total),
	)

	ws, err := o.env.Provision(ctx, environment.Spec{RunID: run.ID, Key: instance.Key, RunsOn: job.RunsOn})
	if err != nil {
		o.failJob(result, FailureProvisioning, err)
		result.Steps = skippedSteps(job)
		return result
	}
	defer func() {
		if err := ws.Close(context.Background()); err != nil {
			slog.Warn("Failed to clean up workspace", "job", instance.Name, "error", err)
		}
	}()

	state, err := newJobState(run, instance, ws, base, ictx.workflow)
	if err != nil {
		o.failJob(result, FailureExpression, err)
		result.Steps = skippedSteps(job)
		return result
	}

	cancelled := false
	for i := range job.Steps {
		stepResult := o.runStep(ctx, state, i, &job.Steps[i])
		result.Steps = append(result.Steps, stepResult)

		switch {
		case stepResult.Conclusion == Cancelled:
			cancelled = true
		case stepResult.Conclusion == Failure && !state.failed:
			state.failed = true
			result.Failure = stepResult.Failure
			result.Error = stepResult.Error
		}
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled) && (cancelled || state.failed):
		result.Conclusion = Cancelled
		result.Failure = FailureCancelled
	case state.failed:
		result.Conclusion = Failure
	case cancelled:
		result.Conclusion = Cancelled
		result.Failure = FailureCancelled
	default:
		result.Conclusion = Success
	}

	if result.Conclusion == Failure && job.ContinueOnError {
		slog.Info("Job failed but continue-on-error is set", "job", instance.Name)
		result.Conclusion = Success
	}
	return result
}

func (o *Orchestrator) failJob(result *JobResult, kind FailureKind, err error) {
	result.Conclusion = Failure
	result.Failure = kind
	result.Error = err.Error()
	slog.Error("Job failed", "job", result.Name, "failure", kind, "error", err)
}

func skippedSteps(job *workflow.Job) []*StepResult {
	steps := make([]*StepResult, 0, len(job.Steps))
	for i, step := range job.Steps {
		steps = append(steps, &StepResult{
			Index:      i,
			ID:         step.ID,
			Name:       step.DisplayName(),
			Outcome:    Skipped,
			Conclusion: Skipped,
		})
	}
	return steps
}

// baseContext holds the expression values that stay fixed for the whole instance.
func (o *Orchestrator) baseContext(run *RunResult, instance *plan.Instance, ictx instanceContext) *expr.Context {
	event := run.Event
	github := map[string]any{
		"event_name": event.Name,
		"ref":        event.Ref(),
		"ref_name":   refName(event),
		"sha":        event.SHA,
		"repository": event.Repository,
		"actor":      event.Actor,
		"run_id":     run.ID,
		"job":        instance.JobID,
		"workflow":   run.Workflow,
		"head_ref":   event.HeadBranch,
		"base_ref":   "",
		"event": map[string]any{
			"action": event.Action,
			"number": float64(event.Number),
		},
	}
	if event.Name == workflow.EventPullRequest {
		github["base_ref"] = event.Branch
	}

	needs := make(map[string]any, len(ictx.needs))
	for id, conclusion := range ictx.needs {
		needs[id] = map[string]any{
			"result":  string(conclusion),
			"outputs": map[string]string{},
		}
	}

	strategy := map[string]any{
		"fail-fast":    instance.Job.FailFast(),
		"job-index":    float64(ictx.index),
		"job-total":    float64(ictx.total),
		"max-parallel": float64(ictx.total),
	}
	if s := instance.Job.Strategy; s != nil && s.MaxParallel > 0 {
		strategy["max-parallel"] = float64(s.MaxParallel)
	}

	matrixValues := instance.Matrix.Values
	if matrixValues == nil {
		matrixValues = map[string]string{}
	}

	ctx := expr.NewContext()
	ctx.Values["github"] = github
	ctx.Values["matrix"] = matrixValues
	ctx.Values["needs"] = needs
	ctx.Values["strategy"] = strategy
	ctx.Values["runner"] = map[string]any{"os": "Linux", "arch": "X64", "name": "actrun", "environment": o.env.Name()}
	ctx.Values["env"] = map[string]string{}
	ctx.Values["job"] = map[string]any{"status": "success"}
	ctx.Values["steps"] = map[string]any{}
	return ctx
}

func refName(event trigger.Event) string {
	ref := event.Ref()
	for _, prefix := range []string{"refs/heads/", "refs/tags/"} {
		if name, ok := strings.CutPrefix(ref, prefix); ok {
			return name
		}
	}
	return strings.TrimPrefix(ref, "refs/")
}

func newJobState(run *RunResult, instance *plan.Instance, ws environment.Workspace, base *expr.Context, wf *workflow.Workflow) (*jobState, error) {
	paths := ws.Paths()
	builtin := map[string]string{
		"CI":                "true",
		"GITHUB_ACTIONS":    "true",
		"GITHUB_WORKSPACE":  paths.Workspace,
		"GITHUB_RUN_ID":     run.ID,
		"GITHUB_JOB":        instance.JobID,
		"GITHUB_WORKFLOW":   run.Workflow,
		"GITHUB_EVENT_NAME": run.Event.Name,
		"GITHUB_REF":        run.Event.Ref(),
		"GITHUB_REF_NAME":   refName(run.Event),
		"GITHUB_SHA":        run.Event.SHA,
		"GITHUB_REPOSITORY": run.Event.Repository,
		"GITHUB_ACTOR":      run.Event.Actor,
		"GITHUB_HEAD_REF":   run.Event.HeadBranch,
		"RUNNER_OS":         "Linux",
		"RUNNER_TEMP":       paths.Temp,
		"RUNNER_TOOL_CACHE": paths.Tool,
	}

	wfEnv, err := expr.InterpolateMap(wf.Env, base.With("env", builtin))
	if err != nil {
		return nil, fmt.Errorf("workflow env: %w", err)
	}
	env := util.MergeEnv(builtin, wfEnv)

	jobEnv, err := expr.InterpolateMap(instance.Job.Env, base.With("env", env))
	if err != nil {
		return nil, fmt.Errorf("job env: %w", err)
	}

	return &jobState{
		run:       run,
		instance:  instance,
		workspace: ws,
		env:       util.MergeEnv(env, jobEnv),
		steps:     make(map[string]any),
		base:      base,
		defaults:  runDefaults(wf.Defaults, instance.Job.Defaults),
	}, nil
}

// runDefaults resolves `defaults.run`, job settings taking precedence over workflow ones.
func runDefaults(layers ...*workflow.Defaults) workflow.RunDefaults {
	var resolved workflow.RunDefaults
	for _, layer := range layers {
		if layer == nil {
			continue
		}
		if layer.Run.Shell != "" {
			resolved.Shell = layer.Run.Shell
		}
		if layer.Run.WorkingDirectory != "" {
			resolved.WorkingDirectory = layer.Run.WorkingDirectory
		}
	}
	return resolved
}

// exprContext is the expression context for the next step.
func (s *jobState) exprContext(status expr.Status) *expr.Context {
	ctx := s.base.With("env", maps.Clone(s.env))
	ctx = ctx.With("steps", maps.Clone(s.steps))
	ctx = ctx.With("job", map[string]any{"status": status.String()})
	ctx.Status = status
	return ctx
}

// commandEnv is the process environment for the next step: job env, step env and PATH.
func (s *jobState) commandEnv(stepEnv map[string]string) map[string]string {
	env := util.MergeEnv(s.env, stepEnv)
	if len(s.path) > 0 {
		base := env["PATH"]
		if base == "" {
			base = s.workspace.DefaultPath()
		}
		env["PATH"] = strings.Join(append(s.reversedPath(), base), ":")
	}
	return env
}

// reversedPath lists PATH additions newest first, as later additions take precedence.
func (s *jobState) reversedPath() []string {
	dirs := make([]string, 0, len(s.path))
	for i := len(s.path) - 1; i >= 0; i-- {
		dirs = append(dirs, s.path[i])
	}
	return dirs
}

func (s *jobState) addPath(dirs ...string) {
	s.path = append(s.path, dirs...)
}

func (s *jobState) recordStep(step *workflow.Step, result *StepResult) {
	if step.ID == "" {
		return
	}
	outputs := result.Outputs
	if outputs == nil {
		outputs = map[string]string{}
	}
	s.steps[step.ID] = map[string]any{
		"outputs":    outputs,
		"outcome":    string(result.Outcome),
		"conclusion": string(result.Conclusion),
	}
}
