package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/greboid/actrun/pkg/plan"
	"github.com/greboid/actrun/pkg/runner"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/workflow"
)

type Executor interface {
	RunWithID(ctx context.Context, id string, p *plan.Plan, event trigger.Event) (*runner.RunResult, error)
}

type Recorder interface {
	Save(run *runner.RunResult) error
}

// AsyncDispatcher plans a workflow and runs it in the background, recording the result.
type AsyncDispatcher struct {
	ctx      context.Context
	executor Executor
	recorder Recorder
	wg       sync.WaitGroup
}

// NewAsyncDispatcher starts runs under ctx, so cancelling it cancels runs in progress.
func NewAsyncDispatcher(ctx context.Context, executor Executor, recorder Recorder) *AsyncDispatcher {
	return &AsyncDispatcher{ctx: ctx, executor: executor, recorder: recorder}
}

func (d *AsyncDispatcher) Dispatch(wf *workflow.Workflow, event trigger.Event) (string, error) {
	p, err := plan.Build(wf, plan.Options{})
	if err != nil {
		return "", fmt.Errorf("planning: %w", err)
	}

	id := uuid.NewString()
	d.wg.Go(func() {
		result, err := d.executor.RunWithID(d.ctx, id, p, event)
		if err != nil {
			slog.Error("Run failed", "run_id", id, "workflow", wf.DisplayName(), "error", err)
			return
		}
		if d.recorder == nil {
			return
		}
		if err := d.recorder.Save(result); err != nil {
			slog.Error("Failed to record run", "run_id", id, "error", err)
		}
	})
	return id, nil
}

// Wait blocks until every dispatched run has finished.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
