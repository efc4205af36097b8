package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/greboid/actrun/pkg/history"
	"github.com/greboid/actrun/pkg/plan"
	"github.com/greboid/actrun/pkg/trigger"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("workflow run failed")

var (
	runEvent       string
	runBranch      string
	runTag         string
	runHead        string
	runAction      string
	runSHA         string
	runJobs        []string
	runConcurrency int
	runEnvironment string
	runSource      string
	runKeep        bool
	runQuiet       bool
	runTrace       string
)

var runCmd = &cobra.Command{
	Use:   "run [workflow]",
	Short: "Run the workflows triggered by an event",
	Long: `Evaluates every workflow (or only the given file) against the event described by
the flags, then runs each triggered workflow. Exits non-zero when any run fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runEvent, "event", workflow.EventPush, "Event name (push, pull_request or workflow_dispatch)")
	runCmd.Flags().StringVar(&runBranch, "branch", "main", "Pushed branch, or the base branch of a pull request")
	runCmd.Flags().StringVar(&runTag, "tag", "", "Pushed tag, instead of a branch")
	runCmd.Flags().StringVar(&runHead, "head", "", "Head branch of a pull request")
	runCmd.Flags().StringVar(&runAction, "action", "opened", "Pull request activity type")
	runCmd.Flags().StringVar(&runSHA, "sha", "", "Commit SHA to check out")
	runCmd.Flags().StringSliceVar(&runJobs, "job", nil, "Only run these jobs and the jobs they need")
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "j", 0, "Maximum instances running at once (default from config)")
	runCmd.Flags().StringVar(&runEnvironment, "environment", "", "Execution environment: local or container (default from config)")
	runCmd.Flags().StringVar(&runSource, "source", ".", "Repository checked out by actions/checkout (default: the repository root)")
	runCmd.Flags().BoolVar(&runKeep, "keep", false, "Keep instance workspaces after the run")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Do not stream step output to the terminal")
	runCmd.Flags().StringVar(&runTrace, "trace", "", "Write trace spans to this file (- for stdout)")
}

func eventFromFlags() trigger.Event {
	event := trigger.Event{
		Name: runEvent,
		SHA:  runSHA,
	}
	switch {
	case runTag != "":
		event.Tag = runTag
	default:
		event.Branch = runBranch
	}
	if runEvent == workflow.EventPullRequest {
		event.Action = runAction
		event.HeadBranch = runHead
	}
	return event
}

func runRun(cmd *cobra.Command, args []string) error {
	input := ""
	if len(args) > 0 {
		input = args[0]
	}

	workflows, err := loadWorkflows(input)
	if err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	event := eventFromFlags()

	traceOutput := runTrace
	if traceOutput == "" {
		traceOutput = settings.Trace.Output
	}
	stopTracing, err := startTracing(traceOutput)
	if err != nil {
		return err
	}
	defer stopTracing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := ExecutionConfig{
		Environment: settings.Environment,
		Concurrency: settings.Concurrency,
		Keep:        runKeep || settings.KeepWorkspaces,
		Source:      repo.Root,
		Output:      os.Stdout,
	}
	if cmd.Flags().Changed("source") {
		exec.Source = runSource
	}
	if runEnvironment != "" {
		exec.Environment = runEnvironment
	}
	if runConcurrency > 0 {
		exec.Concurrency = runConcurrency
	}
	if runQuiet {
		exec.Output = nil
	}

	orch, err := newOrchestrator(ctx, settings, exec)
	if err != nil {
		return err
	}

	store := history.NewStore(settings.History, util.DefaultFS())

	triggered := 0
	failed := false
	for _, wf := range workflows {
		if !trigger.Evaluate(wf, event) {
			slog.Info("Workflow not triggered", "workflow", wf.DisplayName(), "event", event.String())
			continue
		}
		if !hasJobs(wf, runJobs) {
			slog.Debug("Workflow has none of the requested jobs", "workflow", wf.DisplayName())
			continue
		}
		triggered++

		p, err := plan.Build(wf, plan.Options{Jobs: runJobs})
		if err != nil {
			return fmt.Errorf("planning %s: %w", wf.DisplayName(), err)
		}

		result, err := orch.Run(ctx, p, event)
		if err != nil {
			return fmt.Errorf("running %s: %w", wf.DisplayName(), err)
		}

		if err := store.Save(result); err != nil {
			slog.Warn("Failed to record run", "run_id", result.ID, "error", err)
		}
		printRunSummary(os.Stdout, result)

		if !result.Succeeded() {
			failed = true
		}
	}

	if triggered == 0 {
		fmt.Printf("No workflow triggered by %s\n", event.String())
		return nil
	}
	if failed {
		return errRunFailed
	}
	return nil
}

// hasJobs reports whether wf defines every requested job; with no request it always does.
func hasJobs(wf *workflow.Workflow, ids []string) bool {
	for _, id := range ids {
		if _, ok := wf.Job(id); !ok {
			return false
		}
	}
	return true
}
