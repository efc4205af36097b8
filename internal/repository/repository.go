package repository

import (
	"fmt"
	"os"
	"path/filepath"
)

// Repository is a checkout whose workflows actrun runs.
type Repository struct {
	Root         string
	WorkflowsDir string
	ConfigFile   string
}

// Discover walks up from startDir to the nearest directory holding .github/workflows or
// .git. When neither is found, startDir itself is used.
func Discover(startDir string) (*Repository, error) {
	// If startDir is empty, use current directory
	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", absPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absPath)
	}

	root := absPath
	for dir := absPath; ; dir = filepath.Dir(dir) {
		if isDir(filepath.Join(dir, ".github", "workflows")) || exists(filepath.Join(dir, ".git")) {
			root = dir
			break
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}

	return &Repository{
		Root:         root,
		WorkflowsDir: filepath.Join(root, ".github", "workflows"),
		ConfigFile:   filepath.Join(root, ".actrun.yaml"),
	}, nil
}

// Path resolves p against the repository root unless it is already absolute.
func (r *Repository) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.Root, p)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
