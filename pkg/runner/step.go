package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/greboid/actrun/pkg/actions"
	"github.com/greboid/actrun/pkg/environment"
	"github.com/greboid/actrun/pkg/expr"
	"github.com/greboid/actrun/pkg/tracing"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
)

// shellTemplates are the built-in shells; {0} is replaced by the script path.
var shellTemplates = map[string][]string{
	"bash":   {"bash", "--noprofile", "--norc", "-eo", "pipefail", "{0}"},
	"sh":     {"sh", "-e", "{0}"},
	"python": {"python", "{0}"},
}

func (o *Orchestrator) runStep(ctx context.Context, state *jobState, index int, step *workflow.Step) *StepResult {
	result := &StepResult{
		Index:   index,
		ID:      step.ID,
		Name:    step.DisplayName(),
		Started: time.Now(),
	}
	defer func() {
		result.Duration = time.Since(result.Started)
		state.recordStep(step, result)
	}()

	status := expr.StatusSuccess
	switch {
	case ctx.Err() != nil:
		status = expr.StatusCancelled
	case state.failed:
		status = expr.StatusFailure
	}
	ectx := state.exprContext(status)

	shouldRun, err := expr.EvaluateCondition(step.If, ectx)
	if err != nil {
		setFailure(result, FailureExpression, err)
		return result
	}
	if !shouldRun {
		result.Outcome = Skipped
		result.Conclusion = Skipped
		slog.Debug("Skipping step", "job", state.instance.Name, "step", result.Name, "if", step.If)
		return result
	}

	if expr.HasExpression(step.Name) {
		if name, err := expr.Interpolate(step.Name, ectx); err == nil {
			result.Name = name
		}
	}

	if step.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutMinutes)*time.Minute)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "step "+result.Name, map[string]string{
		"job":  state.instance.Key,
		"step": fmt.Sprint(index + 1),
	})

	output, closeOutput := o.stepOutput(state, index, result)
	fmt.Fprintf(output, "Run %s\n", result.Name)

	slog.Debug("Running step", "job", state.instance.Name, "step", result.Name)
	var runErr error
	if step.Uses != "" {
		runErr = o.runAction(ctx, state, step, ectx, output, result)
	} else {
		runErr = o.runScript(ctx, state, step, ectx, output, result)
	}
	closeOutput()

	if runErr != nil {
		classify(ctx, result, runErr)
		if step.ContinueOnError && result.Conclusion == Failure {
			result.Conclusion = Success
			slog.Warn("Step failed, continuing", "job", state.instance.Name, "step", result.Name, "error", runErr)
		} else {
			slog.Error("Step failed", "job", state.instance.Name, "step", result.Name, "error", runErr)
		}
		span.End(runErr)
		return result
	}

	result.Outcome = Success
	result.Conclusion = Success
	span.End(nil)
	return result
}

// stepOutput returns the writer for a step's output: its log file and, when enabled, the
// shared live output.
func (o *Orchestrator) stepOutput(state *jobState, index int, result *StepResult) (io.Writer, func()) {
	var writers []io.Writer
	var closers []func()

	if o.opts.LogDir != "" {
		file, err := createLog(o.opts.LogDir, state.run.ID, state.instance.Key, index, result.Name)
		if err != nil {
			slog.Warn("Failed to create step log", "job", state.instance.Name, "step", result.Name, "error", err)
		} else {
			result.LogFile = file.Name()
			writers = append(writers, file)
			closers = append(closers, func() { _ = file.Close() })
		}
	}

	if o.opts.Output != nil {
		live := newPrefixWriter(&o.outputMu, o.opts.Output, "["+state.instance.Name+"] ")
		writers = append(writers, live)
		closers = append(closers, func() { _ = live.Flush() })
	}

	return io.MultiWriter(writers...), func() {
		for _, closer := range closers {
			closer()
		}
	}
}

func setFailure(result *StepResult, kind FailureKind, err error) {
	result.Outcome = Failure
	result.Conclusion = Failure
	result.Failure = kind
	result.Error = err.Error()
}

func classify(ctx context.Context, result *StepResult, err error) {
	var exitErr *environment.ExitError
	var provisionErr *environment.ProvisionError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		setFailure(result, FailureTimeout, fmt.Errorf("step timed out: %w", err))
	case errors.Is(err, context.Canceled):
		setFailure(result, FailureCancelled, err)
		result.Outcome = Cancelled
		result.Conclusion = Cancelled
	case errors.As(err, &exitErr):
		setFailure(result, FailureExit, &StepError{Step: result.Name, ExitCode: exitErr.Code})
		result.ExitCode = exitErr.Code
	case errors.As(err, &provisionErr):
		setFailure(result, FailureProvisioning, err)
	default:
		setFailure(result, FailureAction, err)
	}
}

func (o *Orchestrator) runAction(ctx context.Context, state *jobState, step *workflow.Step, ectx *expr.Context, output io.Writer, result *StepResult) error {
	action, err := o.opts.Actions.Lookup(step.Uses)
	if err != nil {
		return err
	}

	inputs, err := expr.InterpolateMap(step.With, ectx)
	if err != nil {
		return fmt.Errorf("with: %w", err)
	}
	stepEnv, err := expr.InterpolateMap(step.Env, ectx)
	if err != nil {
		return fmt.Errorf("env: %w", err)
	}

	event := state.run.Event
	actionResult, err := action.Run(ctx, &actions.Context{
		Workspace: state.workspace,
		Inputs:    inputs,
		Env:       state.commandEnv(stepEnv),
		Output:    output,
		Source:    o.opts.Source,
		Exclude:   o.opts.Exclude,
		RunID:     state.run.ID,
		Job:       state.instance.Key,
		Ref:       refName(event),
		SHA:       event.SHA,
	})
	if err != nil {
		return err
	}
	if actionResult == nil {
		return nil
	}

	for key, value := range actionResult.Env {
		state.env[key] = value
	}
	state.addPath(actionResult.Path...)
	result.Outputs = actionResult.Outputs
	return nil
}

// fileCommands are the per-step files a script appends to in order to export environment
// variables, PATH entries and outputs to the rest of the job.
type fileCommands struct {
	env, path, output string
}

func (o *Orchestrator) runScript(ctx context.Context, state *jobState, step *workflow.Step, ectx *expr.Context, output io.Writer, result *StepResult) error {
	script, err := expr.Interpolate(step.Run, ectx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	stepEnv, err := expr.InterpolateMap(step.Env, ectx)
	if err != nil {
		return fmt.Errorf("env: %w", err)
	}

	shell := step.Shell
	if shell == "" {
		shell = state.defaults.Shell
	}
	dir := step.WorkingDirectory
	if dir == "" {
		dir = state.defaults.WorkingDirectory
	}
	if shell == "" {
		shell = o.opts.Shell
	}

	id := uuid.NewString()
	hostTemp := state.workspace.HostPaths().Temp
	temp := state.workspace.Paths().Temp

	extension := ".sh"
	if shell == "python" {
		extension = ".py"
	}
	scriptName := "step-" + id + extension
	if err := os.WriteFile(filepath.Join(hostTemp, scriptName), []byte(script), 0755); err != nil {
		return &environment.ProvisionError{Key: state.instance.Key, Err: fmt.Errorf("writing script: %w", err)}
	}

	files := fileCommands{env: "env-" + id, path: "path-" + id, output: "output-" + id}
	for _, name := range []string{files.env, files.path, files.output} {
		if err := os.WriteFile(filepath.Join(hostTemp, name), nil, 0666); err != nil {
			return &environment.ProvisionError{Key: state.instance.Key, Err: fmt.Errorf("creating file command: %w", err)}
		}
	}

	env := state.commandEnv(stepEnv)
	env["GITHUB_ENV"] = temp + "/" + files.env
	env["GITHUB_PATH"] = temp + "/" + files.path
	env["GITHUB_OUTPUT"] = temp + "/" + files.output

	args, err := shellCommand(shell, temp+"/"+scriptName)
	if err != nil {
		return err
	}

	runErr := state.workspace.Exec(ctx, environment.Command{
		Args:   args,
		Env:    env,
		Dir:    dir,
		Output: output,
	})

	if err := applyFileCommands(state, hostTemp, files, result); err != nil {
		if runErr != nil {
			return runErr
		}
		return err
	}
	return runErr
}

func shellCommand(shell, script string) ([]string, error) {
	template, ok := shellTemplates[shell]
	if !ok {
		if !strings.Contains(shell, "{0}") {
			return nil, fmt.Errorf("unsupported shell %q: custom shells must reference the script as {0}", shell)
		}
		template = strings.Fields(shell)
	}

	args := make([]string, len(template))
	for i, arg := range template {
		args[i] = strings.ReplaceAll(arg, "{0}", script)
	}
	return args, nil
}

// applyFileCommands folds what the script wrote to its file commands into the job state.
// Exports are applied even when the script failed, matching hosted runners.
func applyFileCommands(state *jobState, dir string, files fileCommands, result *StepResult) error {
	read := func(name string) (string, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", name, err)
		}
		return string(data), nil
	}

	envData, err := read(files.env)
	if err != nil {
		return err
	}
	exports, err := parseKeyValueFile(envData)
	if err != nil {
		return fmt.Errorf("GITHUB_ENV: %w", err)
	}
	state.env = util.MergeEnv(state.env, exports)

	pathData, err := read(files.path)
	if err != nil {
		return err
	}
	state.addPath(parsePathFile(pathData)...)

	outputData, err := read(files.output)
	if err != nil {
		return err
	}
	outputs, err := parseKeyValueFile(outputData)
	if err != nil {
		return fmt.Errorf("GITHUB_OUTPUT: %w", err)
	}
	if len(outputs) > 0 {
		result.Outputs = outputs
	}
	return nil
}
