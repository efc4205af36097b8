package util

import (
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFS_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	osfs := OSFS{}
	target := filepath.Join(dir, "runs", "abc.json")

	if err := osfs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := osfs.WriteFile(target, []byte(`{"id":"abc"}`), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := osfs.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"id":"abc"}` {
		t.Errorf("ReadFile() = %q", data)
	}

	info, err := osfs.Stat(target)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.IsDir() {
		t.Error("Stat() reports a directory for a file")
	}

	var walked []string
	err = osfs.WalkDir(dir, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			walked = append(walked, filepath.Base(p))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir() error = %v", err)
	}
	if len(walked) != 1 || walked[0] != "abc.json" {
		t.Errorf("WalkDir() visited %v, want [abc.json]", walked)
	}

	entries, err := osfs.ReadDir(filepath.Dir(target))
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDir() = %v, %v", entries, err)
	}

	renamed := filepath.Join(dir, "runs", "def.json")
	if err := osfs.Rename(target, renamed); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	target = renamed

	if err := osfs.Remove(target); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Errorf("file still exists after Remove(): %v", err)
	}
}

func TestOSFS_Errors(t *testing.T) {
	osfs := OSFS{}
	missing := filepath.Join(t.TempDir(), "missing")

	if _, err := osfs.Open(missing); err == nil {
		t.Error("Open() error = nil, want error")
	}
	if _, err := osfs.ReadFile(missing); err == nil {
		t.Error("ReadFile() error = nil, want error")
	}
	if err := osfs.Remove(missing); err == nil {
		t.Error("Remove() error = nil, want error")
	}
}

func TestOSFS_ImplementsInterfaces(t *testing.T) {
	var _ WalkableFS = OSFS{}
	var _ WalkableFS = DefaultFS()
}
