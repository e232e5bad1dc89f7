package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fedragon/notion-cleanup/internal/config"
	"github.com/fedragon/notion-cleanup/internal/core"
	cdb "github.com/fedragon/notion-cleanup/internal/db"
	"github.com/fedragon/notion-cleanup/internal/metrics"
	"github.com/fedragon/notion-cleanup/internal/models"
	"github.com/fedragon/notion-cleanup/internal/notion"
	"github.com/fedragon/notion-cleanup/internal/report"
	"github.com/fedragon/notion-cleanup/internal/secrets"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
)

// ConfigError marks a failure that happened before any request was sent, such
// as invalid rules or a missing API key.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

type Options struct {
	ConfigPath string
	APIKeyName string
	DryRun     bool
	Delay      time.Duration
	BaseURL    string

	ReportPath      string
	HistoryPath     string
	HistoryKeep     int
	MetricsTextfile string
}

type Runner struct {
	logger  *zap.Logger
	opts    Options
	secrets secrets.Provider
	metrics *metrics.Metrics
}

func NewRunner(logger *zap.Logger, opts Options, provider secrets.Provider, mx *metrics.Metrics) *Runner {
	if opts.APIKeyName == "" {
		opts.APIKeyName = config.DefaultAPIKeyName
	}
	if mx == nil {
		mx = metrics.NoMetrics()
	}

	return &Runner{
		logger:  logger,
		opts:    opts,
		secrets: provider,
		metrics: mx,
	}
}

func (r *Runner) client(apiKey string) *notion.Client {
	var opts []notion.ClientOpt
	if r.opts.BaseURL != "" {
		opts = append(opts, notion.WithBaseURL(r.opts.BaseURL))
	}

	return notion.NewClient(apiKey, opts...)
}

type prepared struct {
	apiKey    string
	cfg       *models.Config
	databases []models.Database
}

// prepare reads the API key and the rules and resolves every placeholder.
// Any failure is a *ConfigError.
func (r *Runner) prepare(ctx context.Context) (*prepared, error) {
	apiKey, err := config.APIKey(ctx, r.secrets, r.opts.APIKeyName)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	configPath, err := homedir.Expand(r.opts.ConfigPath)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	databases, err := config.Resolve(ctx, cfg, r.secrets)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	r.logger.Info("Loaded configuration",
		zap.String("path", configPath),
		zap.String("fingerprint", cfg.Fingerprint),
		zap.Int("databases", len(databases)),
	)

	return &prepared{apiKey: apiKey, cfg: cfg, databases: databases}, nil
}

// Check runs every verification Run does before sending a request, without
// sending any. The returned error is always a *ConfigError.
func (r *Runner) Check(ctx context.Context) error {
	_, err := r.prepare(ctx)
	return err
}

// Run performs one cleanup. The returned error is always a *ConfigError and
// means nothing was sent to the API; database and record failures are
// reported in the summary instead.
func (r *Runner) Run(ctx context.Context) (*models.RunSummary, error) {
	if r.opts.DryRun {
		r.logger.Info("Running in DRY-RUN mode: records will not be archived")
	}

	p, err := r.prepare(ctx)
	if err != nil {
		return nil, err
	}

	delay := r.opts.Delay
	if delay <= 0 {
		delay = core.DefaultDelay
	}

	cleaner := &core.Cleaner{
		API:     r.client(p.apiKey),
		Logger:  r.logger,
		Metrics: r.metrics,
		DryRun:  r.opts.DryRun,
		Delay:   delay,
	}

	summary := cleaner.Run(ctx, p.databases)
	summary.Fingerprint = p.cfg.Fingerprint

	r.export(summary)

	if summary.DryRun {
		r.logger.Info("DRY-RUN mode: no records were archived")
	} else if summary.Totals.Archived > 0 {
		r.logger.Info("Archived records are in the trash and can be restored from there")
	}

	return summary, nil
}

// export writes the summary wherever it was asked to go. Failures are logged
// and do not change the outcome of the run.
func (r *Runner) export(summary *models.RunSummary) {
	if r.opts.ReportPath != "" {
		if err := r.writeReport(summary); err != nil {
			r.logger.Error("Cannot write report", zap.Error(err))
		}
	}

	if r.opts.HistoryPath != "" {
		if err := r.storeHistory(summary); err != nil {
			r.logger.Error("Cannot store run history", zap.Error(err))
		}
	}

	if r.opts.MetricsTextfile != "" {
		path, err := homedir.Expand(r.opts.MetricsTextfile)
		if err == nil {
			err = r.metrics.WriteTextfile(path)
		}
		if err != nil {
			r.logger.Error("Cannot write metrics textfile", zap.Error(err))
		}
	}
}

func (r *Runner) writeReport(summary *models.RunSummary) error {
	path, err := homedir.Expand(r.opts.ReportPath)
	if err != nil {
		return err
	}

	if err := report.Write(path, summary); err != nil {
		return err
	}

	r.logger.Info("Report written", zap.String("path", path))
	return nil
}

func (r *Runner) storeHistory(summary *models.RunSummary) error {
	repo, closeFn, err := OpenHistory(r.opts.HistoryPath, r.logger)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := repo.Store(summary); err != nil {
		return err
	}

	_, err = repo.Prune(r.opts.HistoryKeep)
	return err
}

// OpenHistory opens the run history at path. The returned function closes
// the underlying database.
func OpenHistory(path string, logger *zap.Logger) (cdb.Repository, func(), error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, nil, err
	}

	dbase, err := cdb.Connect(expanded)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open history %v: %w", expanded, err)
	}

	closeFn := func() {
		if err := dbase.Close(); err != nil {
			logger.Info(err.Error())
		}
	}

	repo, err := cdb.NewRepository(dbase, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}

	return repo, closeFn, nil
}

// IsConfigError reports whether err was caused by the configuration or the
// credentials rather than by the API.
func IsConfigError(err error) bool {
	var cErr *ConfigError
	return errors.As(err, &cErr)
}
