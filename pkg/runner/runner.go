// Package runner executes a plan: job instances in parallel, each in its own freshly
// provisioned workspace, and the steps of an instance strictly in order.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/greboid/actrun/pkg/actions"
	"github.com/greboid/actrun/pkg/environment"
	"github.com/greboid/actrun/pkg/plan"
	"github.com/greboid/actrun/pkg/tracing"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/workflow"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultJobTimeout  = 360 * time.Minute
	DefaultConcurrency = 4
	DefaultShell       = "bash"
)

type Options struct {
	// Concurrency bounds the instances running at once across the whole run.
	Concurrency int
	// LogDir receives one log file per step; empty disables step logs.
	LogDir string
	// Output receives live step output prefixed with the instance name; nil discards it.
	Output io.Writer
	// Source is the repository checked out by actions/checkout.
	Source string
	// Exclude lists directories under Source that checkout must not copy, such as the
	// workspaces and logs of this run.
	Exclude []string
	// Shell is used for run steps that name none.
	Shell      string
	JobTimeout time.Duration
	Actions    *actions.Registry
}

type Orchestrator struct {
	env      environment.Environment
	opts     Options
	outputMu sync.Mutex
}

func New(env environment.Environment, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Shell == "" {
		opts.Shell = DefaultShell
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.Actions == nil {
		opts.Actions = actions.Builtin(actions.Options{})
	}
	return &Orchestrator{env: env, opts: opts}
}

func (o *Orchestrator) Initialize(ctx context.Context) error {
	if err := o.env.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing %s environment: %w", o.env.Name(), err)
	}
	slog.Debug("Environment initialized", "environment", o.env.Name())
	return nil
}

// Run executes every instance of p for event. Job and step failures are reported in the
// result, not as an error.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, event trigger.Event) (*RunResult, error) {
	return o.RunWithID(ctx, uuid.NewString(), p, event)
}

// RunWithID is Run with a caller-chosen run id, for callers that report the id before the
// run finishes.
func (o *Orchestrator) RunWithID(ctx context.Context, id string, p *plan.Plan, event trigger.Event) (*RunResult, error) {
	run := &RunResult{
		ID:       id,
		Workflow: p.Workflow.DisplayName(),
		Path:     p.Workflow.Path,
		Event:    event,
		Started:  time.Now(),
	}

	ctx, span := tracing.StartSpan(ctx, "run "+run.Workflow, map[string]string{
		"run_id": run.ID,
		"event":  event.String(),
	})

	total := len(p.Instances())
	slog.Info("Starting run",
		"run_id", run.ID,
		"workflow", run.Workflow,
		"event", event.String(),
		"layers", len(p.Layers),
		"instances", total,
	)

	registry := NewResultRegistry()
	sem := semaphore.NewWeighted(int64(o.opts.Concurrency))

	for layerIdx, layer := range p.Layers {
		slog.Debug("Processing layer", "run_id", run.ID, "layer", layerIdx+1, "jobs", len(layer))

		var g errgroup.Group
		for _, jobPlan := range layer {
			g.Go(func() error {
				o.runJob(ctx, run, p.Workflow, jobPlan, registry, sem)
				return nil
			})
		}
		_ = g.Wait()
	}

	conclusions := make([]Conclusion, 0, total)
	for _, instance := range p.Instances() {
		result, ok := registry.Get(instance.Key)
		if !ok {
			continue
		}
		run.Jobs = append(run.Jobs, result)
		conclusions = append(conclusions, result.Conclusion)
	}
	run.Conclusion = conclude(conclusions)
	run.Finished = time.Now()

	span.EndWithStatus(string(run.Conclusion))
	slog.Info("Run finished",
		"run_id", run.ID,
		"conclusion", run.Conclusion,
		"duration", run.Finished.Sub(run.Started).Round(time.Millisecond),
	)
	return run, nil
}

// runJob fans a job out over its matrix instances. Instances share nothing but the
// run-wide concurrency limit, the job's max-parallel limit and, with fail-fast, a context.
func (o *Orchestrator) runJob(ctx context.Context, run *RunResult, wf *workflow.Workflow, jobPlan *plan.JobPlan, registry *ResultRegistry, sem *semaphore.Weighted) {
	job := jobPlan.Job
	needs := o.needsContext(job.Needs, registry)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	if job.Strategy != nil && job.Strategy.MaxParallel > 0 {
		g.SetLimit(job.Strategy.MaxParallel)
	}

	for idx, instance := range jobPlan.Instances {
		g.Go(func() error {
			if err := sem.Acquire(jobCtx, 1); err != nil {
				registry.Record(cancelledResult(instance, err))
				return nil
			}
			defer sem.Release(1)

			result := o.runInstance(jobCtx, run, instance, instanceContext{
				workflow: wf,
				needs:    needs,
				index:    idx,
				total:    len(jobPlan.Instances),
			})
			registry.Record(result)

			if result.Conclusion == Failure && job.FailFast() {
				slog.Info("Cancelling remaining instances (fail-fast)", "job", job.ID, "failed", instance.Key)
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// needsContext builds the `needs` expression context from the results of earlier layers.
func (o *Orchestrator) needsContext(ids []string, registry *ResultRegistry) map[string]Conclusion {
	needs := make(map[string]Conclusion, len(ids))
	for _, id := range ids {
		needs[id] = needResult(registry.ForJob(id))
	}
	return needs
}

func cancelledResult(instance *plan.Instance, err error) *JobResult {
	return &JobResult{
		Key:        instance.Key,
		JobID:      instance.JobID,
		Name:       instance.Name,
		Matrix:     instance.Matrix.Values,
		Conclusion: Cancelled,
		Failure:    FailureCancelled,
		Error:      err.Error(),
		Started:    time.Now(),
	}
}
