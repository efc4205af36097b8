package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/greboid/actrun/pkg/history"
	"github.com/greboid/actrun/pkg/server"
	"github.com/greboid/actrun/pkg/util"
	"github.com/greboid/actrun/pkg/workflow"
	"github.com/spf13/cobra"
)

var (
	serveListen      string
	serveWorkflows   string
	serveEnvironment string
	serveTrace       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run workflows for GitHub webhook deliveries",
	Long: `Listens for GitHub webhook deliveries on POST /webhook and runs every workflow the
event triggers. Finished runs are recorded and served on GET /runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveWorkflows, "workflows", "", "Workflow file or directory (default from config)")
	serveCmd.Flags().StringVar(&serveEnvironment, "environment", "", "Execution environment: local or container (default from config)")
	serveCmd.Flags().StringVar(&serveTrace, "trace", "", "Write trace spans to this file (- for stdout)")
}

func runServe(_ *cobra.Command, _ []string) error {
	listen := settings.Server.Listen
	if serveListen != "" {
		listen = serveListen
	}
	workflowPath := settings.Server.Workflows
	if serveWorkflows != "" {
		workflowPath = serveWorkflows
	}
	if workflowPath == "" {
		workflowPath = repo.WorkflowsDir
	}

	traceOutput := serveTrace
	if traceOutput == "" {
		traceOutput = settings.Trace.Output
	}
	stopTracing, err := startTracing(traceOutput)
	if err != nil {
		return err
	}
	defer stopTracing()

	if _, err := loadWorkflows(workflowPath); err != nil {
		return fmt.Errorf("loading workflows: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := ExecutionConfig{
		Environment: settings.Environment,
		Concurrency: settings.Concurrency,
		Keep:        settings.KeepWorkspaces,
		Source:      repo.Root,
	}
	if serveEnvironment != "" {
		exec.Environment = serveEnvironment
	}

	orch, err := newOrchestrator(ctx, settings, exec)
	if err != nil {
		return err
	}

	store := history.NewStore(settings.History, util.DefaultFS())
	dispatcher := server.NewAsyncDispatcher(ctx, orch, store)

	secret := settings.WebhookSecret()
	if secret == "" {
		slog.Warn("No webhook secret configured, deliveries are not verified", "secret_env", settings.Server.SecretEnv)
	}

	srv := server.New(server.Options{
		Secret:     secret,
		Workflows:  func() ([]*workflow.Workflow, error) { return loadWorkflows(workflowPath) },
		Dispatcher: dispatcher,
		Runs:       store,
	})

	err = srv.ListenAndServe(ctx, listen)
	slog.Info("Waiting for running workflows to finish")
	dispatcher.Wait()
	return err
}
