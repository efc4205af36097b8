package actions

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/greboid/actrun/pkg/util"
	"github.com/pkg/errors"
)

type CoverageOptions struct {
	// URL receives each report as a POST body. When empty, reports are archived in Dir.
	URL   string
	Token string
	Dir   string

	Client *http.Client
}

// Codecov collects coverage reports from the workspace and publishes them.
type Codecov struct {
	Options CoverageOptions
}

var (
	coveragePatterns = []string{"coverage.xml", "coverage*.json", "*.lcov", "lcov.info", "cobertura*.xml", "jacoco*.xml"}
	skippedDirs      = []string{".git", ".tox", "node_modules", ".venv", "venv", "__pycache__"}
)

func (c *Codecov) Run(ctx context.Context, actx *Context) (*Result, error) {
	warnUnknownInputs("codecov/codecov-action", actx.Inputs, "file", "files", "flags", "name", "token", "fail_ci_if_error", "verbose")

	failOnError, err := util.OptionalBoolInput(actx.Inputs, "fail_ci_if_error", false)
	if err != nil {
		return nil, errors.Wrap(err, "invalid input")
	}

	uploaded, err := c.upload(ctx, actx)
	if err != nil {
		if failOnError {
			return nil, err
		}
		slog.Warn("Coverage upload failed", "job", actx.Job, "error", err)
		fprintf(actx.Output, "Coverage upload failed: %v\n", err)
		return &Result{}, nil
	}

	return &Result{Outputs: map[string]string{"files": strings.Join(uploaded, ",")}}, nil
}

func (c *Codecov) upload(ctx context.Context, actx *Context) ([]string, error) {
	root := actx.Workspace.HostPaths().Workspace
	files, err := coverageFiles(root, actx.Inputs)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no coverage reports found")
	}

	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(root, file))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", file)
		}

		if c.Options.URL != "" {
			err = c.post(ctx, actx, file, data)
		} else {
			err = c.archive(actx, file, data)
		}
		if err != nil {
			return nil, err
		}
		fprintf(actx.Output, "Uploaded %s\n", file)
	}
	return files, nil
}

// coverageFiles returns workspace-relative report paths, either those named by the file and
// files inputs or those found by searching for well-known report names.
func coverageFiles(root string, inputs map[string]string) ([]string, error) {
	var named []string
	for _, key := range []string{"file", "files"} {
		for _, name := range strings.Split(inputs[key], ",") {
			if name = strings.TrimSpace(name); name != "" {
				named = append(named, filepath.Clean(name))
			}
		}
	}
	if len(named) > 0 {
		for _, name := range named {
			full, err := util.ContainedPath(root, name)
			if err != nil {
				return nil, errors.Wrap(err, "invalid coverage report")
			}
			if _, err := os.Stat(full); err != nil {
				return nil, errors.Wrapf(err, "coverage report %s", name)
			}
		}
		return named, nil
	}

	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && slices.Contains(skippedDirs, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		for _, pattern := range coveragePatterns {
			if ok, _ := filepath.Match(pattern, d.Name()); ok {
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				found = append(found, rel)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "searching for coverage reports")
	}
	return found, nil
}

func (c *Codecov) post(ctx context.Context, actx *Context, file string, data []byte) error {
	query := url.Values{}
	query.Set("commit", actx.SHA)
	query.Set("branch", actx.Ref)
	query.Set("job", actx.Job)
	query.Set("build", actx.RunID)
	query.Set("file", file)
	if flags := actx.Inputs["flags"]; flags != "" {
		query.Set("flags", flags)
	}
	if name := actx.Inputs["name"]; name != "" {
		query.Set("name", name)
	}

	target, err := url.Parse(c.Options.URL)
	if err != nil {
		return errors.Wrap(err, "parsing upload URL")
	}
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "creating upload request")
	}
	req.Header.Set("Content-Type", "text/plain")
	token := util.OptionalInput(actx.Inputs, "token", c.Options.Token)
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	client := c.Options.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "uploading %s", file)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("uploading %s: server returned %s", file, resp.Status)
	}
	return nil
}

// archive keeps the report under Dir/<run id>/<instance>/ so it outlives the workspace.
func (c *Codecov) archive(actx *Context, file string, data []byte) error {
	dir := c.Options.Dir
	if dir == "" {
		return errors.New("no coverage upload URL or archive directory configured")
	}

	instance := strings.ReplaceAll(actx.Job, "/", "-")
	dest := filepath.Join(dir, actx.RunID, instance, file)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrap(err, "creating coverage directory")
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return errors.Wrapf(err, "archiving %s", file)
	}
	return nil
}
