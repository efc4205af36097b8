package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/greboid/actrun/pkg/util"
)

// Local runs every instance in its own directory tree on the host.
type Local struct {
	workdir string
	keep    bool
}

func NewLocal(workdir string, keep bool) *Local {
	return &Local{workdir: workdir, keep: keep}
}

func (l *Local) Name() string {
	return ModeLocal
}

func (l *Local) Initialize(_ context.Context) error {
	workdir, err := util.ResolveAbsolutePath(l.workdir)
	if err != nil {
		return fmt.Errorf("resolving workdir: %w", err)
	}
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return fmt.Errorf("creating workdir: %w", err)
	}
	l.workdir = workdir
	return nil
}

func (l *Local) Provision(_ context.Context, spec Spec) (Workspace, error) {
	root := filepath.Join(l.workdir, spec.RunID, dirName(spec.Key))
	paths, err := createTree(root)
	if err != nil {
		return nil, &ProvisionError{Key: spec.Key, Err: err}
	}

	slog.Debug("Provisioned local workspace", "job", spec.Key, "root", root)
	return &localWorkspace{root: root, paths: paths, keep: l.keep}, nil
}

func createTree(root string) (Paths, error) {
	paths := Paths{
		Workspace: filepath.Join(root, "workspace"),
		Temp:      filepath.Join(root, "temp"),
		Tool:      filepath.Join(root, "tool"),
	}
	for _, dir := range []string{paths.Workspace, paths.Temp, paths.Tool} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Paths{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return paths, nil
}

type localWorkspace struct {
	root  string
	paths Paths
	keep  bool
}

func (w *localWorkspace) Paths() Paths {
	return w.paths
}

func (w *localWorkspace) HostPaths() Paths {
	return w.paths
}

func (w *localWorkspace) DefaultPath() string {
	return os.Getenv("PATH")
}

func (w *localWorkspace) Exec(ctx context.Context, command Command) error {
	if len(command.Args) == 0 {
		return fmt.Errorf("no command given")
	}

	cmd := exec.CommandContext(ctx, command.Args[0], command.Args[1:]...)
	cmd.Dir = resolveDir(w.paths, command.Dir)
	cmd.Env = append(os.Environ(), util.EnvList(command.Env)...)
	cmd.WaitDelay = 5 * time.Second

	output := command.Output
	if output == nil {
		output = io.Discard
	}
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return exitError(err)
	}
	return nil
}

func (w *localWorkspace) Close(_ context.Context) error {
	if w.keep {
		slog.Info("Keeping workspace", "root", w.root)
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
