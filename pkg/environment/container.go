package environment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/greboid/actrun/pkg/util"
)

const (
	containerRoot = "/actrun"
	DefaultImage  = "catthehacker/ubuntu:act-latest"
)

// DefaultRunners maps the hosted runner labels onto images that carry a comparable toolset.
var DefaultRunners = map[string]string{
	"ubuntu-latest": DefaultImage,
	"ubuntu-24.04":  "catthehacker/ubuntu:act-24.04",
	"ubuntu-22.04":  "catthehacker/ubuntu:act-22.04",
	"ubuntu-20.04":  "catthehacker/ubuntu:act-20.04",
}

// ImagePinner rewrites an image reference to a digest-pinned one.
type ImagePinner interface {
	Pin(ctx context.Context, imageName string) (string, error)
}

// Container runs every instance in its own long-lived container, driven through the docker
// or podman CLI. The instance tree lives on the host and is bind mounted at /actrun.
type Container struct {
	engine  string
	workdir string
	runners map[string]string
	pinner  ImagePinner
	keep    bool
}

type ContainerOptions struct {
	Engine  string
	Workdir string
	Runners map[string]string
	Pinner  ImagePinner
	Keep    bool
}

func NewContainer(opts ContainerOptions) *Container {
	engine := opts.Engine
	if engine == "" {
		engine = "docker"
	}
	return &Container{
		engine:  engine,
		workdir: opts.Workdir,
		runners: util.MergeEnv(DefaultRunners, opts.Runners),
		pinner:  opts.Pinner,
		keep:    opts.Keep,
	}
}

func (c *Container) Name() string {
	return ModeContainer
}

func (c *Container) Initialize(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.engine, "version", "--format", "{{.Client.Version}}")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s not found or not executable: %w\nOutput: %s", c.engine, err, string(output))
	}

	workdir, err := util.ResolveAbsolutePath(c.workdir)
	if err != nil {
		return fmt.Errorf("resolving workdir: %w", err)
	}
	if err := os.MkdirAll(workdir, 0755); err != nil {
		return fmt.Errorf("creating workdir: %w", err)
	}
	c.workdir = workdir

	slog.Info("Container engine initialized", "engine", c.engine, "version", strings.TrimSpace(strings.Split(string(output), "\n")[0]))
	return nil
}

// Image maps the first runs-on label to a container image. Labels without a mapping are
// assumed to be image references already.
func (c *Container) Image(runsOn []string) string {
	if len(runsOn) == 0 {
		return DefaultImage
	}
	if image, ok := c.runners[runsOn[0]]; ok {
		return image
	}
	return runsOn[0]
}

func (c *Container) Provision(ctx context.Context, spec Spec) (Workspace, error) {
	image := c.Image(spec.RunsOn)
	if c.pinner != nil {
		pinned, err := c.pinner.Pin(ctx, image)
		if err != nil {
			return nil, &ProvisionError{Key: spec.Key, Err: err}
		}
		image = pinned
	}

	root := filepath.Join(c.workdir, spec.RunID, dirName(spec.Key))
	hostPaths, err := createTree(root)
	if err != nil {
		return nil, &ProvisionError{Key: spec.Key, Err: err}
	}

	name := containerName(spec)
	args := []string{
		"run", "-d", "--rm",
		"--name", name,
		"-v", root + ":" + containerRoot,
		"-w", containerRoot + "/workspace",
		"--entrypoint", "tail",
		image,
		"-f", "/dev/null",
	}

	slog.Debug("Starting container", "job", spec.Key, "image", image, "name", name)
	output, err := exec.CommandContext(ctx, c.engine, args...).CombinedOutput()
	if err != nil {
		_ = os.RemoveAll(root)
		return nil, &ProvisionError{Key: spec.Key, Err: fmt.Errorf("starting container from %s: %w\nOutput:\n%s", image, err, string(output))}
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return &containerWorkspace{
		engine:    c.engine,
		id:        strings.TrimSpace(lines[len(lines)-1]),
		root:      root,
		hostPaths: hostPaths,
		keep:      c.keep,
	}, nil
}

func containerName(spec Spec) string {
	runID := spec.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return fmt.Sprintf("actrun-%s-%s", runID, dirName(spec.Key))
}

type containerWorkspace struct {
	engine    string
	id        string
	root      string
	hostPaths Paths
	keep      bool
}

func (w *containerWorkspace) Paths() Paths {
	return Paths{
		Workspace: containerRoot + "/workspace",
		Temp:      containerRoot + "/temp",
		Tool:      containerRoot + "/tool",
	}
}

func (w *containerWorkspace) HostPaths() Paths {
	return w.hostPaths
}

func (w *containerWorkspace) DefaultPath() string {
	return containerPath
}

func (w *containerWorkspace) execArgs(command Command) []string {
	args := []string{"exec", "-w", resolveDir(w.Paths(), command.Dir)}
	for _, kv := range util.EnvList(command.Env) {
		args = append(args, "-e", kv)
	}
	args = append(args, w.id)
	return append(args, command.Args...)
}

func (w *containerWorkspace) Exec(ctx context.Context, command Command) error {
	if len(command.Args) == 0 {
		return fmt.Errorf("no command given")
	}

	cmd := exec.CommandContext(ctx, w.engine, w.execArgs(command)...)
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

func (w *containerWorkspace) Close(ctx context.Context) error {
	if w.keep {
		slog.Info("Keeping container", "id", w.id, "root", w.root)
		return nil
	}

	output, err := exec.CommandContext(ctx, w.engine, "rm", "-f", w.id).CombinedOutput()
	if err != nil {
		return fmt.Errorf("removing container %s: %w\nOutput: %s", w.id, err, string(output))
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("removing workspace: %w", err)
	}
	return nil
}
