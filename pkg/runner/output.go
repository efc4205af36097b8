package runner

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// prefixWriter tags each complete line with the instance name before passing it to a
// shared writer. Partial lines are held until their newline arrives or Flush is called.
type prefixWriter struct {
	mu     *sync.Mutex
	out    io.Writer
	prefix string
	buf    bytes.Buffer
}

func newPrefixWriter(mu *sync.Mutex, out io.Writer, prefix string) *prefixWriter {
	return &prefixWriter{mu: mu, out: out, prefix: prefix}
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			w.buf.Reset()
			w.buf.Write(line)
			return len(p), nil
		}
		if err := w.emit(line); err != nil {
			return len(p), err
		}
	}
}

func (w *prefixWriter) Flush() error {
	if w.buf.Len() == 0 {
		return nil
	}
	line := append(w.buf.Bytes(), '\n')
	w.buf.Reset()
	return w.emit(line)
}

func (w *prefixWriter) emit(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := io.WriteString(w.out, w.prefix+string(line))
	return err
}

var slugChars = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(slugChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(s) > 40 {
		s = strings.TrimRight(s[:40], "-")
	}
	if s == "" {
		return "step"
	}
	return s
}

// createLog opens <dir>/<run>/<instance>/<NN>-<step>.log.
func createLog(dir, runID, key string, index int, name string) (*os.File, error) {
	instanceDir := filepath.Join(dir, runID, strings.ReplaceAll(key, "/", "-"))
	if err := os.MkdirAll(instanceDir, 0755); err != nil {
		return nil, err
	}
	return os.Create(filepath.Join(instanceDir, logName(index, name)))
}

func logName(index int, name string) string {
	return fmt.Sprintf("%02d-%s.log", index+1, slug(name))
}
