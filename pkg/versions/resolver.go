package versions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/csmith/latest"
)

const (
	CPythonRepository = "https://github.com/python/cpython"
	// maxProbedMinor bounds the python3.N names probed for a wildcard spec.
	maxProbedMinor = 20
)

var ErrNotInstalled = errors.New("no matching interpreter installed")

type Interpreter struct {
	Path    string
	Version string
}

type Resolver struct {
	lookPath     func(name string) (string, error)
	probe        func(ctx context.Context, path string) (string, error)
	gitTagClient func(ctx context.Context, repo string, options *latest.TagOptions) (string, error)
}

func New() *Resolver {
	return NewWithClients(exec.LookPath, probeVersion, latest.GitTag)
}

func NewWithClients(
	lookPath func(name string) (string, error),
	probe func(ctx context.Context, path string) (string, error),
	gitClient func(ctx context.Context, repo string, options *latest.TagOptions) (string, error),
) *Resolver {
	return &Resolver{
		lookPath:     lookPath,
		probe:        probe,
		gitTagClient: gitClient,
	}
}

// Resolve finds the newest locally installed interpreter satisfying value.
func (r *Resolver) Resolve(ctx context.Context, value string) (Interpreter, error) {
	spec, err := ParseSpec(value)
	if err != nil {
		return Interpreter{}, err
	}

	seen := make(map[string]bool)
	for _, name := range spec.Candidates(maxProbedMinor) {
		path, err := r.lookPath(name)
		if err != nil || seen[path] {
			continue
		}
		seen[path] = true

		version, err := r.probe(ctx, path)
		if err != nil {
			slog.Debug("Skipping interpreter", "path", path, "error", err)
			continue
		}

		if spec.Matches(version) {
			slog.Debug("Resolved interpreter", "spec", value, "path", path, "version", version)
			return Interpreter{Path: path, Version: normalizeVersion(version)}, nil
		}
	}

	return Interpreter{}, fmt.Errorf("python %s: %w", value, ErrNotInstalled)
}

// Latest reports the newest upstream CPython release.
func (r *Resolver) Latest(ctx context.Context) (string, error) {
	tag, err := r.gitTagClient(ctx, CPythonRepository, &latest.TagOptions{
		TrimPrefixes: []string{"v"},
	})
	if err != nil {
		return "", fmt.Errorf("resolving git tag for %s: %w", CPythonRepository, err)
	}
	return normalizeVersion(tag), nil
}

func probeVersion(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, path, "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("running %s --version: %w\nOutput: %s", path, err, string(output))
	}
	return normalizeVersion(strings.TrimSpace(string(output))), nil
}
