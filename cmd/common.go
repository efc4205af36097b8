package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/greboid/actrun/pkg/actions"
	"github.com/greboid/actrun/pkg/config"
	"github.com/greboid/actrun/pkg/environment"
	"github.com/greboid/actrun/pkg/images"
	"github.com/greboid/actrun/pkg/runner"
	"github.com/greboid/actrun/pkg/tracing"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
)

// ExecutionConfig is what run and serve need to build an orchestrator, after flags have been
// layered over the configuration file.
type ExecutionConfig struct {
	Environment string
	Concurrency int
	Keep        bool
	Source      string
	Output      io.Writer
}

// loadWorkflows loads the workflow file at input, or every workflow in the directory at input.
// An empty input means the repository's workflow directory.
func loadWorkflows(input string) ([]*workflow.Workflow, error) {
	fs := util.DefaultFS()
	if input == "" {
		input = repo.WorkflowsDir
	}

	paths, err := workflow.ResolvePaths(fs, input)
	if err != nil {
		return nil, err
	}

	workflows, failures := workflow.LoadAll(fs, paths)
	if len(failures) > 0 {
		errs := make([]error, 0, len(failures))
		for _, failure := range failures {
			errs = append(errs, failure)
		}
		return nil, errors.Join(errs...)
	}

	slog.Debug("Loaded workflows", "count", len(workflows), "path", input)
	return workflows, nil
}

func newEnvironment(cfg *config.Config, mode string, keep bool) (environment.Environment, error) {
	workdir, err := filepath.Abs(cfg.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolving workdir: %w", err)
	}

	switch mode {
	case config.EnvironmentLocal:
		return environment.NewLocal(workdir, keep), nil
	case config.EnvironmentContainer:
		var pinner environment.ImagePinner
		if cfg.PinDigests {
			pinner = images.NewResolver()
		}
		return environment.NewContainer(environment.ContainerOptions{
			Engine:  cfg.Engine,
			Workdir: workdir,
			Runners: cfg.Runners,
			Pinner:  pinner,
			Keep:    keep,
		}), nil
	default:
		return nil, fmt.Errorf("unknown environment %q (want %s or %s)", mode, config.EnvironmentLocal, config.EnvironmentContainer)
	}
}

func newOrchestrator(ctx context.Context, cfg *config.Config, exec ExecutionConfig) (*runner.Orchestrator, error) {
	env, err := newEnvironment(cfg, exec.Environment, exec.Keep)
	if err != nil {
		return nil, err
	}

	source, err := util.ResolveAbsolutePath(exec.Source)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}

	registry := actions.Builtin(actions.Options{
		Coverage: actions.CoverageOptions{
			URL:   cfg.Coverage.URL,
			Token: cfg.CoverageToken(),
			Dir:   cfg.Coverage.Dir,
		},
	})

	orch := runner.New(env, runner.Options{
		Concurrency: exec.Concurrency,
		LogDir:      cfg.Logs,
		Output:      exec.Output,
		Source:      source,
		Exclude:     []string{cfg.Workdir, cfg.Logs, cfg.History, cfg.Coverage.Dir},
		Shell:       cfg.Shell,
		Actions:     registry,
	})

	if err := orch.Initialize(ctx); err != nil {
		return nil, err
	}
	return orch, nil
}

// startTracing installs a span exporter when output is set and returns its shutdown.
func startTracing(output string) (func(), error) {
	if output == "" {
		return func() {}, nil
	}
	if err := tracing.Init(version, output); err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(ctx); err != nil {
			slog.Warn("Failed to flush traces", "error", err)
		}
	}, nil
}

func printRunSummary(w io.Writer, run *runner.RunResult) {
	_, _ = fmt.Fprintf(w, "\n%s: %s (%s, run %s)\n", run.Workflow, run.Conclusion, run.Event.String(), run.ID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, job := range run.Jobs {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", job.Name, job.Conclusion, job.Duration.Round(time.Millisecond))
		for _, step := range job.Steps {
			if step.Conclusion == runner.Success && step.Outcome == runner.Success {
				continue
			}
			detail := string(step.Conclusion)
			if step.Error != "" {
				detail += ": " + step.Error
			}
			_, _ = fmt.Fprintf(tw, "    %s\t%s\t\n", step.Name, detail)
		}
	}
	_ = tw.Flush()
}
