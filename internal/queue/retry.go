package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	// Attempts is the total number of tries per call, including the first.
	// Default: 5.
	Attempts int
	// Min and Max bound the exponential backoff. Defaults: 1s and 1m.
	Min time.Duration
	Max time.Duration
	// OnRetry, when set, is called before every backoff sleep.
	OnRetry func(op string, attempt int, wait time.Duration)
	Logger  *slog.Logger
}

func (o *RetryOptions) defaults() {
	if o.Attempts <= 0 {
		o.Attempts = 5
	}
	if o.Min <= 0 {
		o.Min = time.Second
	}
	if o.Max < o.Min {
		o.Max = time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type retryTable struct {
	next Table
	opts RetryOptions
}

// WithRetry wraps t so that calls failing with ErrRateLimited are retried
// with exponential backoff. Every other error is returned as is.
func WithRetry(t Table, opts RetryOptions) Table {
	opts.defaults()
	return &retryTable{next: t, opts: opts}
}

func (r *retryTable) ListRows(ctx context.Context) ([]models.Task, error) {
	var rows []models.Task
	err := r.do(ctx, "list_rows", func() error {
		var err error
		rows, err = r.next.ListRows(ctx)
		return err
	})
	return rows, err
}

func (r *retryTable) ReadCell(ctx context.Context, row int, col Column) (string, error) {
	var v string
	err := r.do(ctx, "read_cell", func() error {
		var err error
		v, err = r.next.ReadCell(ctx, row, col)
		return err
	})
	return v, err
}

func (r *retryTable) WriteCell(ctx context.Context, row int, col Column, value string) error {
	return r.do(ctx, "write_cell", func() error {
		return r.next.WriteCell(ctx, row, col, value)
	})
}

func (r *retryTable) do(ctx context.Context, op string, call func() error) error {
	b := &backoff.Backoff{Min: r.opts.Min, Max: r.opts.Max, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; attempt <= r.opts.Attempts; attempt++ {
		err = call()
		if err == nil || !errors.Is(err, ErrRateLimited) {
			return err
		}
		if attempt == r.opts.Attempts {
			break
		}

		wait := b.Duration()
		r.opts.Logger.WarnContext(ctx, "queue rate limited, backing off",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.opts.Attempts,
			"backoff_ms", wait.Milliseconds(),
		)
		if r.opts.OnRetry != nil {
			r.opts.OnRetry(op, attempt, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
