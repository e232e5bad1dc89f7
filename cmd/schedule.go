package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fedragon/notion-cleanup/internal"
	"github.com/fedragon/notion-cleanup/internal/metrics"
	"github.com/fedragon/notion-cleanup/internal/schedule"
	"github.com/fedragon/notion-cleanup/internal/secrets"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func scheduleAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signalContext(c.Context)
	defer stop()

	mx := metrics.NewMetrics()
	runner := internal.NewRunner(logger, runnerOptions(c), secrets.NewEnvProvider(""), mx)

	// rules and credentials are read again on every run
	if err := preflight(ctx, logger, runner); err != nil {
		return err
	}

	job := func(ctx context.Context) error {
		summary, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		if !summary.OK() {
			return fmt.Errorf("%d database(s) could not be processed", summary.Totals.Errors)
		}
		return nil
	}

	if addr := c.String("metrics-addr"); addr != "" {
		srv := serveMetrics(logger, addr, mx)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if c.Bool("run-on-start") {
		if err := job(ctx); err != nil {
			logger.Error("Initial run failed", zap.Error(err))
		}
	}

	scheduler := schedule.NewScheduler(c.String("cron"), job, logger)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Cannot start scheduler", zap.Error(err))
		return cli.Exit("", exitConfig)
	}

	if next := scheduler.NextRun(); next != nil {
		logger.Info("Next run scheduled", zap.Time("at", *next))
	}

	<-ctx.Done()
	scheduler.Stop()

	return nil
}

// preflight fails with the configuration exit code when the rules or the API
// key would make every scheduled run fail before its first request.
func preflight(ctx context.Context, logger *zap.Logger, runner *internal.Runner) error {
	if err := runner.Check(ctx); err != nil {
		logger.Error("Configuration error", zap.Error(err))
		return cli.Exit("", exitConfig)
	}

	return nil
}

func serveMetrics(logger *zap.Logger, addr string, mx *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mx.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return srv
}
