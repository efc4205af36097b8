// Package environment provisions the isolated workspaces job instances run in.
package environment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
)

const (
	ModeLocal     = "local"
	ModeContainer = "container"
)

// Paths are the well-known directories of a workspace.
type Paths struct {
	Workspace string
	Temp      string
	Tool      string
}

// Spec describes the instance a workspace is provisioned for.
type Spec struct {
	RunID  string
	Key    string
	RunsOn []string
}

// Command is a single process to execute inside a workspace. Output of both streams goes to
// Output. A relative Dir is resolved against the workspace directory.
type Command struct {
	Args   []string
	Env    map[string]string
	Dir    string
	Output io.Writer
}

type Environment interface {
	Name() string
	Initialize(ctx context.Context) error
	Provision(ctx context.Context, spec Spec) (Workspace, error)
}

type Workspace interface {
	// Paths are the directories as seen by commands run with Exec.
	Paths() Paths
	// HostPaths are the same directories on the host filesystem.
	HostPaths() Paths
	// DefaultPath is the PATH commands see before any additions from the job.
	DefaultPath() string
	Exec(ctx context.Context, cmd Command) error
	Close(ctx context.Context) error
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with status %d", e.Code)
}

// ProvisionError reports a workspace that could not be prepared.
type ProvisionError struct {
	Key string
	Err error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning %s: %v", e.Key, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

const containerPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// dirName turns an instance key such as "build/2" into a single path element.
func dirName(key string) string {
	name := strings.Trim(unsafeChars.ReplaceAllString(key, "-"), "-")
	if name == "" {
		return "job"
	}
	return name
}

func exitError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

func resolveDir(paths Paths, dir string) string {
	if dir == "" {
		return paths.Workspace
	}
	if strings.HasPrefix(dir, "/") {
		return dir
	}
	return strings.TrimSuffix(paths.Workspace, "/") + "/" + dir
}
