package actions

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/greboid/actrun/pkg/util"
	"github.com/pkg/errors"
)

// Checkout populates the workspace from the source repository. Git repositories are cloned
// so the working tree matches a commit; plain directories are copied.
type Checkout struct{}

func (c *Checkout) Run(ctx context.Context, actx *Context) (*Result, error) {
	warnUnknownInputs("actions/checkout", actx.Inputs, "lfs", "path", "ref", "fetch-depth", "submodules")

	if actx.Source == "" {
		return nil, errors.New("no source repository configured")
	}
	lfs, err := util.OptionalBoolInput(actx.Inputs, "lfs", false)
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}
	submodules, err := util.OptionalBoolInput(actx.Inputs, "submodules", false)
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}
	depth, err := util.OptionalIntInput(actx.Inputs, "fetch-depth", 1)
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}
	if depth < 0 {
		return nil, errors.Errorf("invalid input: fetch-depth must not be negative, got %d", depth)
	}

	target, err := checkoutTarget(actx.Workspace.HostPaths().Workspace, util.OptionalInput(actx.Inputs, "path", ""))
	if err != nil {
		return nil, err
	}

	source, err := util.ResolveAbsolutePath(actx.Source)
	if err != nil {
		return nil, errors.Wrap(err, "resolving source")
	}

	if _, err := os.Stat(filepath.Join(source, ".git")); err != nil {
		if lfs {
			return nil, errors.Errorf("lfs requested but %s is not a git repository", source)
		}
		fprintf(actx.Output, "Copying %s\n", source)
		if err := copyTree(source, target, actx.Exclude); err != nil {
			return nil, errors.Wrapf(err, "copying %s", source)
		}
		return &Result{}, nil
	}

	ref := util.OptionalInput(actx.Inputs, "ref", actx.SHA)
	if err := gitCheckout(ctx, actx.Output, gitCommands(source, target, ref, depth, submodules, lfs)); err != nil {
		return nil, err
	}
	return &Result{Outputs: map[string]string{"ref": ref}}, nil
}

func checkoutTarget(workspace, path string) (string, error) {
	if path == "" {
		return workspace, nil
	}
	target, err := util.ContainedPath(workspace, path)
	if err != nil {
		return "", errors.Wrap(err, "invalid checkout path")
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", errors.Wrap(err, "creating checkout path")
	}
	return target, nil
}

// gitCommands clones source into target. A depth of 0 fetches the whole history; otherwise
// only the last depth commits of ref are fetched.
func gitCommands(source, target, ref string, depth int, submodules, lfs bool) [][]string {
	var commands [][]string
	if depth == 0 {
		commands = append(commands, []string{"git", "clone", "--no-hardlinks", "--quiet", source, target})
		if ref != "" {
			commands = append(commands, []string{"git", "-C", target, "checkout", "--quiet", ref})
		}
	} else {
		if ref == "" {
			ref = "HEAD"
		}
		commands = append(commands,
			[]string{"git", "init", "--quiet", target},
			[]string{"git", "-C", target, "remote", "add", "origin", "file://" + source},
			[]string{"git", "-C", target, "fetch", "--quiet", "--no-tags", "--depth", strconv.Itoa(depth),
				"--upload-pack", "git -c uploadpack.allowAnySHA1InWant=true upload-pack", "origin", ref},
			[]string{"git", "-C", target, "checkout", "--quiet", "FETCH_HEAD"},
		)
	}
	if submodules {
		commands = append(commands, []string{"git", "-C", target, "submodule", "update", "--init", "--recursive"})
	}
	if lfs {
		commands = append(commands, []string{"git", "-C", target, "lfs", "pull"})
	}
	return commands
}

func gitCheckout(ctx context.Context, output io.Writer, commands [][]string) error {
	for _, args := range commands {
		fprintf(output, "[command]%s\n", strings.Join(args, " "))
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		if output != nil {
			cmd.Stdout = output
			cmd.Stderr = output
		}
		if err := cmd.Run(); err != nil {
			return errors.Wrapf(err, "running %s", strings.Join(args[:min(len(args), 4)], " "))
		}
	}
	return nil
}

// copyTree copies source into the existing directory target, skipping VCS metadata, the
// target itself and every directory in exclude.
func copyTree(source, target string, exclude []string) error {
	skip := map[string]bool{filepath.Clean(target): true}
	for _, dir := range exclude {
		if abs, err := util.ResolveAbsolutePath(dir); err == nil {
			skip[abs] = true
		}
	}

	return filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && (d.Name() == ".git" || skip[filepath.Clean(path)]) {
			return filepath.SkipDir
		}

		dest := filepath.Join(target, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(dest, 0755)
		case d.Type()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, dest)
		case d.Type().IsRegular():
			return copyFile(path, dest)
		default:
			return nil
		}
	})
}

func copyFile(source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
