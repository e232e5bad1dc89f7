package main

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fedragon/notion-cleanup/internal"
	"github.com/fedragon/notion-cleanup/internal/models"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func historyAction(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = logger.Sync() }()

	repo, closeFn, err := internal.OpenHistory(c.String("history"), logger)
	if err != nil {
		logger.Error("Cannot open run history", zap.Error(err))
		return cli.Exit("", exitFailure)
	}
	defer closeFn()

	runs, err := repo.List(c.Int("limit"))
	if err != nil {
		logger.Error("Cannot list runs", zap.Error(err))
		return cli.Exit("", exitFailure)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	printRuns(os.Stdout, runs)
	return nil
}

func printRuns(w io.Writer, runs []models.RunSummary) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Run", "Started", "Duration", "Dry run", "Databases", "Matched", "Archived", "Failed", "Skipped", "Errors"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	for _, run := range runs {
		table.Append([]string{
			run.RunID,
			run.StartedAt.Local().Format(time.RFC3339),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String(),
			strconv.FormatBool(run.DryRun),
			strconv.Itoa(run.Totals.Databases),
			strconv.Itoa(run.Totals.Matched),
			strconv.Itoa(run.Totals.Archived),
			strconv.Itoa(run.Totals.Failed),
			strconv.Itoa(run.Totals.Skipped),
			strconv.Itoa(run.Totals.Errors),
		})
	}

	table.Render()
}
