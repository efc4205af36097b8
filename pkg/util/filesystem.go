package util

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WritableFS is everything actrun needs from a filesystem: reading workflow files and
// config, and keeping run records. OSFS is the real disk; TestFS is an in-memory stand-in.
type WritableFS interface {
	fs.StatFS
	fs.ReadFileFS
	fs.ReadDirFS

	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(name string) error
	Rename(oldpath, newpath string) error
}

// WalkableFS can also walk a tree, which workflow discovery needs.
type WalkableFS interface {
	WritableFS

	WalkDir(root string, fn fs.WalkDirFunc) error
}

type OSFS struct{}

func (OSFS) Open(name string) (fs.File, error) { return os.Open(name) }
func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }
func (OSFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }
func (OSFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFS) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }
func (OSFS) Remove(name string) error { return os.Remove(name) }
func (OSFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }
func (OSFS) WalkDir(root string, fn fs.WalkDirFunc) error { return filepath.WalkDir(root, fn) }

func (OSFS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func DefaultFS() WalkableFS {
	return OSFS{}
}

// WriteFileAtomic writes data next to name and renames it into place, so readers never
// see a partially written file.
func WriteFileAtomic(fsys WritableFS, name string, data []byte, perm fs.FileMode) error {
	tmp := name + ".tmp"
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := fsys.Rename(tmp, name); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}
