package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kiranshivaraju/gridrunner/internal/config"
	"github.com/kiranshivaraju/gridrunner/internal/setup"
)

var setupCmd = &cli.Command{
	Name:  "setup",
	Usage: "download and build dependencies, download the corpus and write the config",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "overwrite-config", Usage: "overwrite the config if it already exists"},
		&cli.BoolFlag{Name: "overwrite-corpus", Usage: "download the corpus again even if it already exists"},
		&cli.BoolFlag{Name: "overwrite-fasttext", Usage: "download and rebuild fastText even if it already exists"},
		&cli.PathFlag{Name: "corpus-location", Usage: "directory to download the corpus to", Value: "corpus"},
		&cli.StringFlag{Name: "corpus-url", Usage: "corpus to download; .bz2, .gz, .xz and .zst are decompressed", Value: setup.DefaultCorpusURL},
		&cli.PathFlag{Name: "fasttext-location", Usage: "directory to clone and build fastText in", Value: "lib"},
		&cli.StringFlag{Name: "fasttext-repo", Usage: "git repository to clone fastText from", Value: setup.DefaultFastTextRepo},
		&cli.PathFlag{Name: "vectors-location", Usage: "directory to store trained models in", Value: "vectors"},
		&cli.StringFlag{Name: "backend", Usage: "task table backend: sheets, postgres or redis", Value: config.BackendSheets},
		&cli.PathFlag{Name: "api-key-location", Usage: "service account credentials for the spreadsheet", Value: setup.DefaultAPIKey},
		&cli.StringFlag{Name: "spreadsheet-id", Usage: "id of the spreadsheet holding the task table", Value: setup.DefaultSpreadsheetID},
		&cli.StringFlag{Name: "database-url", Usage: "postgres connection string", EnvVars: []string{"DATABASE_URL"}},
		&cli.StringFlag{Name: "redis-url", Usage: "redis connection string", EnvVars: []string{"REDIS_URL"}},
		&cli.StringFlag{Name: "grid", Usage: "grid name for the postgres and redis backends", Value: config.DefaultGrid},
		&cli.IntFlag{Name: "threads", Usage: "number of training threads", Value: config.DefaultThreads()},
		&cli.PathFlag{Name: "logfile", Usage: "JSON lines file to write training results to", Value: config.DefaultLogFile},
		&cli.StringFlag{Name: "hostname", Usage: "worker identifier; defaults to the hostname"},
		&cli.BoolFlag{Name: "no-progress", Usage: "do not draw a progress bar while downloading"},
	},
	Action: func(c *cli.Context) error {
		opts := setup.Options{
			ConfigPath:   c.Path("config"),
			CorpusURL:    c.String("corpus-url"),
			CorpusDir:    c.Path("corpus-location"),
			FastTextDir:  c.Path("fasttext-location"),
			FastTextRepo: c.String("fasttext-repo"),
			VectorsDir:   c.Path("vectors-location"),
			Threads:      c.Int("threads"),
			LogFile:      c.Path("logfile"),
			Hostname:     c.String("hostname"),
			Queue: config.QueueConfig{
				Backend: c.String("backend"),
				Sheets: config.SheetsConfig{
					APIKey:        c.Path("api-key-location"),
					SpreadsheetID: c.String("spreadsheet-id"),
				},
				Postgres: config.PostgresConfig{URL: c.String("database-url"), Grid: c.String("grid")},
				Redis:    config.RedisConfig{URL: c.String("redis-url"), Grid: c.String("grid")},
			},
			OverwriteConfig:   c.Bool("overwrite-config"),
			OverwriteCorpus:   c.Bool("overwrite-corpus"),
			OverwriteFastText: c.Bool("overwrite-fasttext"),
		}

		progress := c.App.ErrWriter
		if progress == nil {
			progress = os.Stderr
		}
		if c.Bool("no-progress") {
			progress = nil
		}

		_, err := setup.New(slog.Default(), progress).Run(c.Context, opts)
		return err
	},
}
