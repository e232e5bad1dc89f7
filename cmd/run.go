package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fedragon/notion-cleanup/internal"
	"github.com/fedragon/notion-cleanup/internal/config"
	"github.com/fedragon/notion-cleanup/internal/metrics"
	"github.com/fedragon/notion-cleanup/internal/models"
	"github.com/fedragon/notion-cleanup/internal/secrets"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func runnerOptions(c *cli.Context) internal.Options {
	return internal.Options{
		ConfigPath:      c.String("config"),
		APIKeyName:      c.String("api-key-env"),
		DryRun:          c.Bool("dry-run") || config.DryRunFromEnv(os.Getenv("DRY_RUN")),
		Delay:           c.Duration("delay"),
		BaseURL:         c.String("base-url"),
		ReportPath:      c.String("report"),
		HistoryPath:     c.String("history"),
		HistoryKeep:     c.Int("history-keep"),
		MetricsTextfile: c.String("metrics-textfile"),
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(c.Context)
	defer stop()

	runner := internal.NewRunner(logger, runnerOptions(c), secrets.NewEnvProvider(""), metrics.NewMetrics())

	summary, err := runner.Run(ctx)
	return exitStatus(logger, summary, err, c.Bool("fail-on-record-errors"))
}

// exitStatus maps the outcome of a run to the process exit code: 2 for
// configuration errors, 1 for database-level errors, 0 otherwise. Record
// failures only count with failOnRecordErrors.
func exitStatus(logger *zap.Logger, summary *models.RunSummary, err error, failOnRecordErrors bool) error {
	if err != nil {
		logger.Error("Configuration error, nothing was sent to the API", zap.Error(err))
		return cli.Exit("", exitConfig)
	}

	if !summary.OK() {
		logger.Error("Some databases could not be processed", zap.Int("database_errors", summary.Totals.Errors))
		return cli.Exit("", exitFailure)
	}

	if failOnRecordErrors && summary.Totals.Failed > 0 {
		logger.Error("Some records could not be archived", zap.Int("failed", summary.Totals.Failed))
		return cli.Exit("", exitFailure)
	}

	return nil
}
