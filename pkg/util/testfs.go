package util

import (
	"errors"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"testing/fstest"
	"time"
)

// TestFS is an in-memory WalkableFS. It is safe for concurrent use, so tests can share
// one between a server and the dispatcher writing run records behind it.
type TestFS struct {
	mu    sync.RWMutex
	MapFS fstest.MapFS
}

func NewTestFS() *TestFS {
	return &TestFS{MapFS: make(fstest.MapFS)}
}

func (t *TestFS) Open(name string) (fs.File, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.MapFS.Open(clean(name))
}

func (t *TestFS) Stat(name string) (fs.FileInfo, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fs.Stat(t.MapFS, clean(name))
}

func (t *TestFS) ReadFile(name string) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fs.ReadFile(t.MapFS, clean(name))
}

func (t *TestFS) ReadDir(name string) ([]fs.DirEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fs.ReadDir(t.MapFS, clean(name))
}

func (t *TestFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name = clean(name)
	t.mkdirs(path.Dir(name))
	t.MapFS[name] = &fstest.MapFile{Data: slices.Clone(data), Mode: perm, ModTime: time.Now()}
	return nil
}

func (t *TestFS) MkdirAll(p string, _ fs.FileMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mkdirs(clean(p))
	return nil
}

func (t *TestFS) Remove(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	name = clean(name)
	if _, ok := t.MapFS[name]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	for p := range t.MapFS {
		if strings.HasPrefix(p, name+"/") {
			return &fs.PathError{Op: "remove", Path: name, Err: errDirNotEmpty}
		}
	}
	delete(t.MapFS, name)
	return nil
}

func (t *TestFS) Rename(oldpath, newpath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	oldpath, newpath = clean(oldpath), clean(newpath)
	file, ok := t.MapFS[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	if file.Mode.IsDir() {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrInvalid}
	}
	t.mkdirs(path.Dir(newpath))
	t.MapFS[newpath] = file
	delete(t.MapFS, oldpath)
	return nil
}

// WalkDir walks a snapshot of the tree, so fn may write to the filesystem while walking.
func (t *TestFS) WalkDir(root string, fn fs.WalkDirFunc) error {
	t.mu.RLock()
	snapshot := maps.Clone(t.MapFS)
	t.mu.RUnlock()
	return fs.WalkDir(snapshot, clean(root), fn)
}

func (t *TestFS) mkdirs(dir string) {
	for dir != "." && dir != "/" {
		if _, ok := t.MapFS[dir]; !ok {
			t.MapFS[dir] = &fstest.MapFile{Mode: fs.ModeDir | 0o755, ModTime: time.Now()}
		}
		dir = path.Dir(dir)
	}
}

var errDirNotEmpty = errors.New("directory not empty")

func clean(name string) string {
	if name == "" {
		return "."
	}
	return path.Clean(name)
}
