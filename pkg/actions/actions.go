// Package actions implements the built-in actions a step can reference with `uses:`.
package actions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/greboid/actrun/pkg/environment"
	"github.com/greboid/actrun/pkg/util"
	"github.com/pkg/errors"
)

// Context is everything an action may touch while it runs.
type Context struct {
	Workspace environment.Workspace
	Inputs    map[string]string
	Env       map[string]string
	Output    io.Writer

	// Source is the host directory of the repository under test.
	Source string
	// Exclude lists host directories inside Source that hold actrun's own state. They are
	// never copied into a workspace.
	Exclude []string
	RunID  string
	Job    string
	Ref    string
	SHA    string
}

// Result carries the side effects an action hands back to the rest of the job.
type Result struct {
	Env     map[string]string
	Path    []string
	Outputs map[string]string
}

type Action interface {
	Run(ctx context.Context, actx *Context) (*Result, error)
}

type Registry struct {
	actions map[string]Action
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register binds an action to a reference such as "actions/checkout". Any version suffix on
// a step's `uses:` is ignored during lookup.
func (r *Registry) Register(name string, action Action) {
	r.actions[strings.ToLower(name)] = action
}

func (r *Registry) Lookup(uses string) (Action, error) {
	name := strings.ToLower(uses)
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	action, ok := r.actions[name]
	if !ok {
		return nil, errors.Errorf("unsupported action %q (supported: %s)", uses, strings.Join(r.Names(), ", "))
	}
	return action, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Options struct {
	Python   PythonLocator
	Coverage CoverageOptions
}

// Builtin returns a registry with every built-in action.
func Builtin(opts Options) *Registry {
	registry := NewRegistry()
	registry.Register("actions/checkout", &Checkout{})
	registry.Register("actions/setup-python", &SetupPython{Locator: opts.Python})
	registry.Register("codecov/codecov-action", &Codecov{Options: opts.Coverage})
	return registry
}

func warnUnknownInputs(action string, inputs map[string]string, known ...string) {
	if unknown := util.UnknownInputs(inputs, known...); len(unknown) > 0 {
		slog.Warn("Ignoring unknown action inputs", "action", action, "inputs", strings.Join(unknown, ", "))
	}
}

func fprintf(w io.Writer, format string, args ...any) {
	if w != nil {
		_, _ = fmt.Fprintf(w, format, args...)
	}
}
