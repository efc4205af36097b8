package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the tool configuration at path. A missing file yields the defaults.
func Load(fsys fs.ReadFileFS, path string) (*Config, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes data over the defaults, so omitted keys keep their default values.
func Parse(data []byte) (*Config, error) {
	config := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

func Validate(config *Config) error {
	if config.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", config.Concurrency)
	}

	switch config.Environment {
	case EnvironmentLocal, EnvironmentContainer:
	default:
		return fmt.Errorf("environment must be %q or %q, got %q", EnvironmentLocal, EnvironmentContainer, config.Environment)
	}

	if config.Environment == EnvironmentContainer {
		switch config.Engine {
		case "docker", "podman":
		default:
			return fmt.Errorf("engine must be docker or podman, got %q", config.Engine)
		}
	}

	if err := validateShell(config.Shell); err != nil {
		return err
	}

	for label, image := range config.Runners {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("runners: empty runs-on label")
		}
		if strings.TrimSpace(image) == "" {
			return fmt.Errorf("runners: no image for %q", label)
		}
	}

	if config.Coverage.URL != "" {
		u, err := url.Parse(config.Coverage.URL)
		if err != nil {
			return fmt.Errorf("coverage.url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("coverage.url must be an http or https URL, got %q", config.Coverage.URL)
		}
	}

	if config.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	return nil
}

func validateShell(shell string) error {
	switch shell {
	case "", "bash", "sh", "python":
		return nil
	}
	if !strings.Contains(shell, "{0}") {
		return fmt.Errorf("shell %q is not built in and does not reference the script as {0}", shell)
	}
	return nil
}
