package workflow

import (
	"fmt"
	iofs "io/fs"
	"path"
	"sort"

	"github.com/greboid/actrun/pkg/util"
)

const DefaultWorkflowDir = ".github/workflows"

// ResolvePaths turns a CLI argument into workflow files: a file is returned as is,
// a directory (or an empty input, meaning DefaultWorkflowDir) is searched for YAML files.
func ResolvePaths(fs util.WalkableFS, input string) ([]string, error) {
	if input == "" {
		input = DefaultWorkflowDir
	}

	info, err := fs.Stat(input)
	if err != nil {
		return nil, fmt.Errorf("accessing path: %w", err)
	}

	if !info.IsDir() {
		return []string{input}, nil
	}

	files, err := FindWorkflowFiles(fs, input)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no workflow files found in %s", input)
	}
	return files, nil
}

func FindWorkflowFiles(fs util.WalkableFS, dir string) ([]string, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("accessing directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string

	_ = fs.WalkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if p != dir {
				return iofs.SkipDir
			}
			return nil
		}

		if ext := path.Ext(d.Name()); ext == ".yml" || ext == ".yaml" {
			files = append(files, p)
		}

		return nil
	})

	sort.Strings(files)
	return files, nil
}

type LoadError struct {
	Path string
	Err  error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// LoadAll loads every path, collecting failures instead of stopping at the first one.
func LoadAll(fs iofs.ReadFileFS, paths []string) ([]*Workflow, []LoadError) {
	var (
		workflows []*Workflow
		failures  []LoadError
	)

	for _, p := range paths {
		wf, err := Load(fs, p)
		if err != nil {
			failures = append(failures, LoadError{Path: p, Err: err})
			continue
		}
		workflows = append(workflows, wf)
	}

	return workflows, failures
}
