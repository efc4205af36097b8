package actions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/greboid/actrun/pkg/environment"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/versions"
	"github.com/pkg/errors"
)

// PythonLocator finds an interpreter satisfying a version spec inside a workspace.
type PythonLocator interface {
	Locate(ctx context.Context, ws environment.Workspace, spec string) (versions.Interpreter, error)
}

// WorkspaceLocator probes for interpreters by running commands inside the workspace, so
// the same lookup works on the host and inside a container.
type WorkspaceLocator struct{}

func (WorkspaceLocator) Locate(ctx context.Context, ws environment.Workspace, spec string) (versions.Interpreter, error) {
	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		if err := ws.Exec(ctx, environment.Command{Args: args, Output: &out}); err != nil {
			return "", err
		}
		return strings.TrimSpace(out.String()), nil
	}

	lookPath := func(name string) (string, error) {
		path, err := run("sh", "-c", `command -v "$1"`, "sh", name)
		if err != nil || path == "" {
			return "", fmt.Errorf("%s: not found", name)
		}
		return path, nil
	}
	probe := func(ctx context.Context, path string) (string, error) {
		return run(path, "--version")
	}

	return versions.NewWithClients(lookPath, probe, nil).Resolve(ctx, spec)
}

// SetupPython puts the requested interpreter first on PATH for the rest of the job. It
// creates a virtual environment in the tool directory so package installs stay inside the
// instance, falling back to plain shims when the interpreter cannot create one.
type SetupPython struct {
	Locator PythonLocator
}

func (s *SetupPython) Run(ctx context.Context, actx *Context) (*Result, error) {
	warnUnknownInputs("actions/setup-python", actx.Inputs, "python-version", "architecture")

	spec, err := util.RequiredInput(actx.Inputs, "python-version")
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}

	locator := s.Locator
	if locator == nil {
		locator = WorkspaceLocator{}
	}

	interpreter, err := locator.Locate(ctx, actx.Workspace, spec)
	if err != nil {
		return nil, &environment.ProvisionError{Key: "python " + spec, Err: err}
	}
	fprintf(actx.Output, "Using python %s at %s\n", interpreter.Version, interpreter.Path)

	paths := actx.Workspace.Paths()
	location := paths.Tool + "/python"
	hostLocation := filepath.Join(actx.Workspace.HostPaths().Tool, "python")

	err = actx.Workspace.Exec(ctx, environment.Command{
		Args:   []string{interpreter.Path, "-m", "venv", location},
		Output: actx.Output,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fprintf(actx.Output, "Creating a virtual environment failed (%v), using shims\n", err)
		if err := writeShims(hostLocation, interpreter.Path); err != nil {
			return nil, &environment.ProvisionError{Key: "python " + spec, Err: err}
		}
	}

	return &Result{
		Env:  map[string]string{"pythonLocation": location},
		Path: []string{location + "/bin"},
		Outputs: map[string]string{
			"python-version": interpreter.Version,
			"python-path":    location + "/bin/python",
		},
	}, nil
}

func writeShims(location, interpreter string) error {
	if err := os.RemoveAll(location); err != nil {
		return errors.Wrap(err, "clearing tool directory")
	}
	bin := filepath.Join(location, "bin")
	if err := os.MkdirAll(bin, 0755); err != nil {
		return errors.Wrap(err, "creating tool directory")
	}

	for _, name := range []string{"python", "python3"} {
		if err := os.Symlink(interpreter, filepath.Join(bin, name)); err != nil {
			return errors.Wrapf(err, "linking %s", name)
		}
	}

	pip := fmt.Sprintf("#!/bin/sh\nexec %q -m pip \"$@\"\n", interpreter)
	for _, name := range []string{"pip", "pip3"} {
		if err := os.WriteFile(filepath.Join(bin, name), []byte(pip), 0755); err != nil {
			return errors.Wrapf(err, "writing %s", name)
		}
	}
	return nil
}
