// Command gridrunner is the worker of a distributed fastText parameter grid.
// It claims rows from a shared task table, trains one model per row and
// records the results.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kiranshivaraju/gridrunner/internal/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("gridrunner failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "gridrunner",
		Usage: "compute fastText vectors for every parameter set in a shared task table",
		Description: `gridrunner is the node worker of a training grid. Any number of workers
   share one task table; each repeatedly claims an unset row, trains a
   fastText model with the row's parameters and marks the row Computed.

   Run "gridrunner setup" once per machine, then "gridrunner train".`,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:      "config",
				Usage:     "path to the config file",
				Value:     "config.json",
				EnvVars:   []string{"GRIDRUNNER_CONFIG"},
				TakesFile: true,
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "print lots of debugging statements",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "be verbose",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error; overridden by --debug and --verbose",
				Value:   "warn",
				EnvVars: []string{"GRIDRUNNER_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "json or text",
				Value:   "json",
				EnvVars: []string{"GRIDRUNNER_LOG_FORMAT"},
			},
		},
		Before: func(c *cli.Context) error {
			level := c.String("log-level")
			switch {
			case c.Bool("debug"):
				level = "debug"
			case c.Bool("verbose"):
				level = "info"
			}

			logger, err := newLogger(c.App.ErrWriter, level, c.String("log-format"))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
		Commands: []*cli.Command{
			setupCmd,
			trainCmd,
			statusCmd,
			journalCmd,
			importCmd,
		},
	}
}

// newLogger builds the process logger. Logs go to w so that stdout stays free
// for command output.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: must be debug, info, warn or error", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: must be json or text", format)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.Path("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.Debug("config loaded", "path", path, "backend", cfg.Queue.Backend, "worker", cfg.Hostname)
	return cfg, nil
}
