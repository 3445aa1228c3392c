package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitesmith/internal/config"
	siteerrors "github.com/conneroisu/sitesmith/internal/errors"
	"github.com/conneroisu/sitesmith/internal/logging"
	"github.com/conneroisu/sitesmith/internal/notify"
	"github.com/conneroisu/sitesmith/internal/pipeline"
	"github.com/conneroisu/sitesmith/internal/server"
	"github.com/conneroisu/sitesmith/internal/tasks"
)

// app wires configuration, logging, metrics, the dev server and the task
// registry together for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *logging.SiteLogger
	runner   *pipeline.Runner
	registry *pipeline.Registry
}

func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, siteerrors.NewConfigError("LOG_LEVEL", err.Error())
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: logOut,
	})

	policy, err := siteerrors.PolicyFromStrings(cfg.Errors.Recoverable)
	if err != nil {
		return nil, siteerrors.NewConfigError("ERROR_POLICY", err.Error())
	}

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.New(server.OptionsFromConfig(cfg), logger).WithMetrics(metrics)
	notifier := notify.Multi{notify.LogNotifier{Logger: logger}, srv}
	runner := pipeline.NewRunner(logger, notifier, policy).
		WithRecorder(pipeline.NewPrometheusRecorder(metrics))

	set, err := tasks.NewSet(cfg, tasks.Deps{Logger: logger, Runner: runner, Server: srv})
	if err != nil {
		return nil, siteerrors.NewConfigError("TASKS", err.Error())
	}
	registry := pipeline.NewRegistry()
	if err := set.Register(registry); err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, runner: runner, registry: registry}, nil
}

// loadApp reads the configuration and builds the app for cmd. A strict app
// treats every error as fatal.
func loadApp(cmd *cobra.Command, strict bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if strict {
		cfg.Errors.Recoverable = nil
	}
	return newApp(cfg, cmd.ErrOrStderr())
}

// run executes the named task. Being stopped by a signal is a clean exit.
func (a *app) run(ctx context.Context, name string) error {
	defer func() { _ = a.logger.Sync() }()

	err := a.runner.RunNamed(ctx, a.registry, name)
	if errors.Is(err, context.Canceled) {
		a.logger.Info(ctx, "Stopped")
		return nil
	}
	return err
}

func runTask(cmd *cobra.Command, name string, strict bool) error {
	a, err := loadApp(cmd, strict)
	if err != nil {
		return err
	}
	if err := a.run(cmd.Context(), name); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}
