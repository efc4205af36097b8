package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/greboid/actrun/internal/repository"
	"github.com/greboid/actrun/pkg/config"
	"github.com/greboid/actrun/pkg/util"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	debugMode  bool
	configPath string
	repoPath   string

	// Shared state
	repo     *repository.Repository
	settings *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "actrun",
	Short:         "Run GitHub Actions style workflows on this machine",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if debugMode {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		var err error
		repo, err = repository.Discover(repoPath)
		if err != nil {
			return fmt.Errorf("failed to discover repository: %w", err)
		}

		path := repo.ConfigFile
		if cmd.Flags().Changed("config") {
			path = configPath
		}
		settings, err = config.Load(util.DefaultFS(), path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}

		settings.Workdir = repo.Path(settings.Workdir)
		settings.History = repo.Path(settings.History)
		settings.Logs = repo.Path(settings.Logs)
		settings.Coverage.Dir = repo.Path(settings.Coverage.Dir)
		settings.Server.Workflows = repo.Path(settings.Server.Workflows)

		slog.Debug("Repository discovered", "root", repo.Root, "config", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the actrun configuration file (default: in the repository root)")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "r", "", "Path to repository (default: current directory)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
