// Package provider opens the queue backend named in the config.
package provider

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/gridrunner/internal/config"
	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/internal/queue/postgres"
	"github.com/kiranshivaraju/gridrunner/internal/queue/redis"
	"github.com/kiranshivaraju/gridrunner/internal/queue/sheets"
)

// Queue is an opened backend. Table is the raw backend without retries.
type Queue struct {
	Table   queue.Table
	Backend string
	close   func() error
}

// Close releases the backend's connections.
func (q *Queue) Close() error {
	if q.close == nil {
		return nil
	}
	return q.close()
}

// Appender returns the backend as a queue.Appender when it supports adding rows.
func (q *Queue) Appender() (queue.Appender, bool) {
	a, ok := q.Table.(queue.Appender)
	return a, ok
}

// Open constructs the backend selected by cfg.Backend. Postgres schemas are
// migrated on open.
func Open(ctx context.Context, cfg config.QueueConfig) (*Queue, error) {
	switch cfg.Backend {
	case config.BackendSheets:
		c, err := sheets.NewFromKeyFile(ctx, cfg.Sheets.APIKey, sheets.Options{
			SpreadsheetID:     cfg.Sheets.SpreadsheetID,
			Worksheet:         cfg.Sheets.Worksheet,
			RequestsPerMinute: cfg.Sheets.RequestsPerMinute,
		})
		if err != nil {
			return nil, err
		}
		return &Queue{Table: c, Backend: cfg.Backend}, nil

	case config.BackendPostgres:
		if err := postgres.RunMigrations(cfg.Postgres.URL); err != nil {
			return nil, err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return &Queue{
			Table:   postgres.NewTable(pool, cfg.Postgres.Grid),
			Backend: cfg.Backend,
			close:   func() error { pool.Close(); return nil },
		}, nil

	case config.BackendRedis:
		t, err := redis.NewTable(ctx, cfg.Redis.URL, cfg.Redis.Grid)
		if err != nil {
			return nil, err
		}
		return &Queue{Table: t, Backend: cfg.Backend, close: t.Close}, nil

	default:
		return nil, fmt.Errorf("unknown queue backend %q: must be one of sheets, postgres, redis", cfg.Backend)
	}
}

// RetryOptions converts the retry section of the config.
func RetryOptions(cfg config.RetryConfig) queue.RetryOptions {
	return queue.RetryOptions{
		Attempts: cfg.Attempts,
		Min:      cfg.Min.Std(),
		Max:      cfg.Max.Std(),
	}
}
