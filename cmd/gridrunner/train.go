package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/gridrunner/internal/api"
	"github.com/kiranshivaraju/gridrunner/internal/api/handler"
	mw "github.com/kiranshivaraju/gridrunner/internal/api/middleware"
	"github.com/kiranshivaraju/gridrunner/internal/api/response"
	"github.com/kiranshivaraju/gridrunner/internal/claim"
	"github.com/kiranshivaraju/gridrunner/internal/config"
	"github.com/kiranshivaraju/gridrunner/internal/grid"
	"github.com/kiranshivaraju/gridrunner/internal/journal"
	"github.com/kiranshivaraju/gridrunner/internal/metrics"
	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/internal/queue/provider"
	"github.com/kiranshivaraju/gridrunner/internal/runner"
)

const shutdownTimeout = 30 * time.Second

var trainCmd = &cli.Command{
	Name:  "train",
	Usage: "claim and train tasks until the table has no unset rows left",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "status-addr",
			Usage: "serve health, status and metrics on this address, e.g. :8080",
		},
		&cli.BoolFlag{
			Name:  "show-fasttext-output",
			Usage: "copy fastText's output to stderr",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		statusAddr := resolveStatusAddr(c.String("status-addr"), cfg)
		if err := cfg.Preflight(); err != nil {
			return fmt.Errorf("preflight: %w", err)
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec := &runner.OSExecutor{}
		if c.Bool("show-fasttext-output") {
			exec.Stdout = c.App.ErrWriter
			exec.Stderr = c.App.ErrWriter
		}

		summary, err := train(ctx, cfg, statusAddr, exec)
		slog.Info("run finished",
			"claimed", summary.Claimed,
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"journal_errors", summary.JournalErrors,
		)
		return err
	},
}

// resolveStatusAddr prefers the --status-addr flag over the config file.
func resolveStatusAddr(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.Status.Addr
}

// train wires the queue, claimer, runner and journal into a coordinator and
// runs it, alongside a status server on statusAddr when it is not empty.
func train(ctx context.Context, cfg *config.Config, statusAddr string, exec runner.Executor) (grid.Summary, error) {
	logger := slog.Default()

	q, err := provider.Open(ctx, cfg.Queue)
	if err != nil {
		return grid.Summary{}, fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()
	logger.Info("queue opened", "backend", q.Backend)

	m := metrics.New()

	retry := provider.RetryOptions(cfg.Queue.Retry)
	retry.OnRetry = m.QueueRetried
	retry.Logger = logger
	table := queue.WithRetry(q.Table, retry)

	coord := grid.New(grid.Options{
		Table:   table,
		Claimer: claim.New(table, cfg.Hostname, claim.WithLogger(logger)),
		Runner: runner.New(exec, runner.Config{
			FastText: cfg.FastText,
			Corpus:   cfg.Corpus,
			Vectors:  cfg.Vectors,
			Threads:  cfg.Threads,
		}, logger),
		Journal:  journal.New(cfg.LogFile),
		Corpus:   cfg.Corpus,
		Observer: m,
		Logger:   logger,
	})

	// runCtx ends the status server once the loop is done.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	g, gctx := errgroup.WithContext(runCtx)

	var summary grid.Summary
	g.Go(func() error {
		defer cancelRun()
		var err error
		summary, err = coord.Run(gctx)
		return err
	})

	if statusAddr != "" {
		srv := &http.Server{
			Addr: statusAddr,
			Handler: api.NewRouter(api.Dependencies{
				Auth:           mw.NewAuth(cfg.Status.TokenHash),
				HealthHandler:  healthHandler(coord),
				StatusHandler:  handler.NewStatusHandler(coord),
				JournalHandler: handler.NewJournalHandler(cfg.LogFile),
				Metrics:        m.Handler(),
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		g.Go(func() error { return serve(gctx, srv) })
	}

	return summary, g.Wait()
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	slog.Info("status server stopped")
	return nil
}

// healthHandler reports the worker as degraded once its run has aborted.
func healthHandler(src handler.StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := src.Snapshot()
		checks := map[string]string{
			"worker": string(snap.State),
		}

		if snap.State == grid.StateAborted {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"Worker run aborted", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
