// Package history keeps a JSON record of every finished run.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/greboid/actrun/pkg/runner"
	"github.com/greboid/actrun/pkg/util"
)

var ErrNotFound = errors.New("run not found")

type Store struct {
	dir string
	fs  util.WritableFS
}

func NewStore(dir string, fs util.WritableFS) *Store {
	return &Store{dir: dir, fs: fs}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *Store) Save(run *runner.RunResult) error {
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}

	if err := util.WriteFileAtomic(s.fs, s.path(run.ID), data, 0644); err != nil {
		return fmt.Errorf("writing run record: %w", err)
	}

	return nil
}

func (s *Store) Get(id string) (*runner.RunResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	data, err := s.fs.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading run record: %w", err)
	}

	var run runner.RunResult
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing run record %s: %w", id, err)
	}
	return &run, nil
}

// List returns every recorded run, newest first.
func (s *Store) List() ([]*runner.RunResult, error) {
	entries, err := fs.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	var runs []*runner.RunResult
	for _, entry := range entries {
		id, ok := strings.CutSuffix(entry.Name(), ".json")
		if entry.IsDir() || !ok {
			continue
		}
		run, err := s.Get(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		runs = append(runs, run)
	}

	slices.SortFunc(runs, func(a, b *runner.RunResult) int {
		return b.Started.Compare(a.Started)
	})
	return runs, nil
}

// Prune removes all but the newest keep records and reports how many were removed.
func (s *Store) Prune(keep int) (int, error) {
	runs, err := s.List()
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(runs) <= keep {
		return 0, nil
	}

	removed := 0
	for _, run := range runs[keep:] {
		if err := s.fs.Remove(s.path(run.ID)); err != nil {
			return removed, fmt.Errorf("removing run %s: %w", run.ID, err)
		}
		removed++
	}
	return removed, nil
}
