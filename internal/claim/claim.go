// Package claim implements the best-effort claim protocol on top of a
// queue.Table.
//
// A claim is a list followed by three independent cell writes (Status,
// Timestamp, Worker). Nothing makes the pair atomic: two workers that list
// the table before either writes will both claim the same row and both run
// it. The backends offer no compare-and-set, so this package does not try to
// prevent that; the last writer's Timestamp and Worker values win.
package claim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// VetFunc decides whether an unset row may be claimed. A non-nil error
// leaves the row untouched and the scan moves on to the next row.
type VetFunc func(task models.Task) error

// Claimer claims rows for one worker.
type Claimer struct {
	table  queue.Table
	worker string
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	claimed map[int]bool
}

// Option configures a Claimer.
type Option func(*Claimer)

// WithClock replaces time.Now for the claim timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Claimer) { c.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Claimer) { c.logger = l }
}

// New creates a Claimer that signs its claims with worker.
func New(table queue.Table, worker string, opts ...Option) *Claimer {
	c := &Claimer{
		table:   table,
		worker:  worker,
		now:     time.Now,
		logger:  slog.Default(),
		claimed: make(map[int]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Worker returns the identity written into the Worker column.
func (c *Claimer) Worker() string { return c.worker }

// Claim lists the table and claims the first row, in row order, whose
// status is unset and which vet accepts. It returns nil, nil when no such
// row exists. The returned task carries the params read before the claim
// and the claim markers that were written.
func (c *Claimer) Claim(ctx context.Context, vet VetFunc) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := c.table.ListRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing rows: %w", err)
	}

	for _, row := range rows {
		if !row.Unset() || c.ownClaim(row.Row) {
			continue
		}
		if vet != nil {
			if err := vet(row); err != nil {
				continue
			}
		}
		return c.claim(ctx, row)
	}
	return nil, nil
}

func (c *Claimer) claim(ctx context.Context, task models.Task) (*models.Task, error) {
	task.Status = models.StatusProcessing
	task.ClaimedAt = models.FormatTimestamp(c.now())
	task.ClaimedBy = c.worker

	for _, col := range []queue.Column{queue.ColStatus, queue.ColTimestamp, queue.ColWorker} {
		if err := c.table.WriteCell(ctx, task.Row, col, queue.Cell(task, col)); err != nil {
			return nil, fmt.Errorf("claiming row %d (%s): %w", task.Row, col, err)
		}
		if col == queue.ColStatus {
			c.markOwn(task.Row)
		}
	}

	c.logger.DebugContext(ctx, "row claimed", "row", task.Row, "worker", c.worker, "claimed_at", task.ClaimedAt)
	return &task, nil
}

// ownClaim guards against a backend that still lists a row as unset right
// after this worker wrote Processing to it.
func (c *Claimer) ownClaim(row int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimed[row]
}

func (c *Claimer) markOwn(row int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed[row] = true
}
