package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fedragon/notion-cleanup/internal/metrics"
	"github.com/fedragon/notion-cleanup/internal/models"
	"github.com/fedragon/notion-cleanup/internal/notion"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDelay keeps the cleanup under Notion's limit of ~3 requests/second.
const DefaultDelay = 350 * time.Millisecond

// API is the subset of the remote API the cleanup needs.
type API interface {
	Query(ctx context.Context, databaseID string, filter json.RawMessage, cursor string) (*models.Page, error)
	Archive(ctx context.Context, recordID string) error
}

// Cleaner archives the records matching each database's filter, one request
// at a time.
type Cleaner struct {
	API     API
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// DryRun forces dry-run mode on every database, whatever its own setting.
	DryRun bool

	// Delay is the pause after each archive request and between pages.
	Delay time.Duration

	// Sleep pauses for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *Cleaner) Run(ctx context.Context, databases []models.Database) *models.RunSummary {
	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		DryRun:    c.DryRun,
		Databases: make([]models.DatabaseResult, 0, len(databases)),
	}

	for _, db := range databases {
		if err := ctx.Err(); err != nil {
			c.Logger.Warn("Run interrupted, skipping database", zap.String("database", db.Label()), zap.Error(err))
			summary.Add(models.DatabaseResult{
				Name:       db.Label(),
				DatabaseID: db.ID,
				DryRun:     c.DryRun || db.DryRun,
				Err:        fmt.Errorf("not processed: %w", err),
			})
			continue
		}

		summary.Add(c.Clean(ctx, db))
	}

	summary.FinishedAt = time.Now().UTC()
	c.Metrics.RunCompleted(summary.FinishedAt, summary.OK())

	c.Logger.Info("Cleanup summary",
		zap.String("run_id", summary.RunID),
		zap.Int("databases", summary.Totals.Databases),
		zap.Int("matched", summary.Totals.Matched),
		zap.Int("archived", summary.Totals.Archived),
		zap.Int("failed", summary.Totals.Failed),
		zap.Int("skipped", summary.Totals.Skipped),
		zap.Int("database_errors", summary.Totals.Errors),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)

	return summary
}

// Clean processes a single database. Failures to archive single records are
// counted and never stop the loop; a failing query ends it and is reported
// in the result's Err.
func (c *Cleaner) Clean(ctx context.Context, db models.Database) models.DatabaseResult {
	res := models.DatabaseResult{
		Name:       db.Label(),
		DatabaseID: db.ID,
		DryRun:     c.DryRun || db.DryRun,
	}

	log := c.Logger.With(zap.String("database", res.Name), zap.String("database_id", db.ID))
	log.Info("Processing database", zap.Bool("dry_run", res.DryRun))

	var cursor string
	for page := 1; ; page++ {
		stop := c.Metrics.Record("query")
		p, err := c.API.Query(ctx, db.ID, db.Filters, cursor)
		stop()

		if err != nil {
			res.Err = err
			c.Metrics.DatabaseError(res.Name)

			if notion.IsAuthError(err) {
				log.Error("Database is not accessible: check the API key and that the database is shared with the integration", zap.Error(err))
			} else {
				log.Error("Cannot query database", zap.Int("page", page), zap.Error(err))
			}
			break
		}

		log.Debug("Fetched page", zap.Int("page", page), zap.Int("records", len(p.Records)), zap.Bool("has_more", p.HasMore))

		for i, r := range p.Records {
			res.Matched++
			c.Metrics.Increment(res.Name, metrics.Matched)

			if res.DryRun {
				log.Info("Would have archived record", zap.String("record_id", r.ID), zap.Int("position", res.Matched))
				res.Skipped++
				c.Metrics.Increment(res.Name, metrics.Skipped)
				continue
			}

			stop := c.Metrics.Record("archive")
			err := c.API.Archive(ctx, r.ID)
			stop()

			if err != nil {
				log.Error("Cannot archive record", zap.String("record_id", r.ID), zap.Int("position", res.Matched), zap.Error(err))
				res.Failed++
				res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", r.ID, err))
				c.Metrics.Increment(res.Name, metrics.Failed)
			} else {
				log.Info("Archived record", zap.String("record_id", r.ID), zap.Int("position", res.Matched))
				res.Archived++
				c.Metrics.Increment(res.Name, metrics.Archived)
			}

			// once the last record is done, an interrupted pause loses nothing
			if err := c.pause(ctx); err != nil && (p.HasMore || i < len(p.Records)-1) {
				log.Warn("Interrupted", zap.Error(err))
				res.Err = err
				return c.done(log, res)
			}
		}

		if !p.HasMore {
			break
		}
		cursor = p.NextCursor

		if err := c.pause(ctx); err != nil {
			log.Warn("Interrupted", zap.Error(err))
			res.Err = err
			break
		}
	}

	return c.done(log, res)
}

func (c *Cleaner) done(log *zap.Logger, res models.DatabaseResult) models.DatabaseResult {
	if res.Matched == 0 && res.Err == nil {
		log.Info("No records found matching the filter")
	}

	log.Info("Database processed",
		zap.Int("matched", res.Matched),
		zap.Int("archived", res.Archived),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Bool("dry_run", res.DryRun),
	)

	return res
}

func (c *Cleaner) pause(ctx context.Context) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, c.Delay)
	}

	return Sleep(ctx, c.Delay)
}

// Sleep waits for d, returning early with the context's error if ctx is done
// first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
