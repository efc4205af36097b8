package config

import "os"

const DefaultPath = ".actrun.yaml"

const (
	EnvironmentLocal     = "local"
	EnvironmentContainer = "container"
)

type Config struct {
	// Workdir holds the per-instance workspaces.
	Workdir string `yaml:"workdir"`
	// History holds one JSON record per finished run.
	History string `yaml:"history"`
	// Logs holds the per-step log files.
	Logs           string            `yaml:"logs"`
	Concurrency    int               `yaml:"concurrency"`
	Environment    string            `yaml:"environment"`
	Engine         string            `yaml:"engine"`
	KeepWorkspaces bool              `yaml:"keep_workspaces"`
	Shell          string            `yaml:"shell"`
	Runners        map[string]string `yaml:"runners"`
	PinDigests     bool              `yaml:"pin_digests"`
	Coverage       Coverage          `yaml:"coverage"`
	Server         Server            `yaml:"server"`
	Trace          Trace             `yaml:"trace"`
}

type Coverage struct {
	// URL receives coverage reports; empty archives them under Dir instead.
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"token_env"`
	Dir      string `yaml:"dir"`
}

type Server struct {
	Listen    string `yaml:"listen"`
	SecretEnv string `yaml:"secret_env"`
	Workflows string `yaml:"workflows"`
}

type Trace struct {
	// Output is a file for span output, "-" for stdout, empty to disable tracing.
	Output string `yaml:"output"`
}

func Default() *Config {
	return &Config{
		Workdir:     ".actrun/work",
		History:     ".actrun/history",
		Logs:        ".actrun/logs",
		Concurrency: 4,
		Environment: EnvironmentLocal,
		Engine:      "docker",
		Shell:       "bash",
		Coverage: Coverage{
			TokenEnv: "CODECOV_TOKEN",
			Dir:      ".actrun/coverage",
		},
		Server: Server{
			Listen:    ":8080",
			SecretEnv: "ACTRUN_WEBHOOK_SECRET",
			Workflows: ".github/workflows",
		},
	}
}

func (c *Config) CoverageToken() string {
	if c.Coverage.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Coverage.TokenEnv)
}

func (c *Config) WebhookSecret() string {
	if c.Server.SecretEnv == "" {
		return ""
	}
	return os.Getenv(c.Server.SecretEnv)
}
