package main

import (
	"log"
	"os"
	"time"

	"github.com/fedragon/notion-cleanup/internal/config"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	app := &cli.App{
		Name:  "notion-cleanup",
		Usage: "Archive Notion database records matching declarative filter rules",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Minimum log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "json",
				Usage: "Log format (json, console)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the cleanup once",
				Flags:  runFlags(),
				Action: runAction,
			},
			{
				Name:  "schedule",
				Usage: "Run the cleanup on a cron schedule",
				Flags: append(runFlags(),
					&cli.StringFlag{
						Name:     "cron",
						Required: true,
						Usage:    "Cron expression, e.g. \"0 3 * * *\" for every day at 3 AM",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Address to expose Prometheus metrics on, e.g. :9101",
					},
					&cli.BoolFlag{
						Name:  "run-on-start",
						Usage: "Run once immediately, before the first scheduled tick",
					},
				),
				Action: scheduleAction,
			},
			{
				Name:  "history",
				Usage: "List past runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "history",
						Required: true,
						Usage:    "Path to the run history database",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 20,
						Usage: "Maximum number of runs to list (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print runs as JSON",
					},
				},
				Action: historyAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Required: true,
			Usage:    "Path to the JSON (or YAML) file with the cleanup rules",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Show what would be archived without archiving anything (also enabled by DRY_RUN=true)",
		},
		&cli.DurationFlag{
			Name:  "delay",
			Value: 350 * time.Millisecond,
			Usage: "Pause after each archive request",
		},
		&cli.StringFlag{
			Name:  "api-key-env",
			Value: config.DefaultAPIKeyName,
			Usage: "Environment variable holding the API key",
		},
		&cli.StringFlag{
			Name:  "base-url",
			Usage: "Override the API base URL",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON summary of the run to this path",
		},
		&cli.StringFlag{
			Name:  "history",
			Usage: "Append the run summary to this history database",
		},
		&cli.IntFlag{
			Name:  "history-keep",
			Value: 100,
			Usage: "Number of runs to keep in the history (0 keeps all)",
		},
		&cli.StringFlag{
			Name:  "metrics-textfile",
			Usage: "Write Prometheus metrics to this file after each run",
		},
		&cli.BoolFlag{
			Name:  "fail-on-record-errors",
			Usage: "Exit with an error when any record could not be archived",
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.String("log-level"))); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if c.String("log-format") == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	return cfg.Build()
}
