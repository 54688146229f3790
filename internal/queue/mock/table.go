// Package mock provides an in-memory queue.Table for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// Write records one WriteCell call that reached the table.
type Write struct {
	Row   int
	Col   queue.Column
	Value string
}

// Table is a concurrency-safe in-memory task table. Hooks must be set before
// the table is shared between goroutines.
type Table struct {
	mu     sync.Mutex
	rows   []models.Task
	writes []Write

	// ListErr, when set, is returned by every ListRows call.
	ListErr error
	// WriteFunc, when set, runs before every write; a non-nil error aborts it.
	WriteFunc func(ctx context.Context, row int, col queue.Column, value string) error
	// AfterList runs after ListRows has taken its snapshot, outside the lock.
	// Tests use it to widen the window between a worker's read and its claim.
	AfterList func()
}

// NewTable returns a table holding rows. Rows with a zero Row field are
// numbered by position, starting at 1.
func NewTable(rows ...models.Task) *Table {
	t := &Table{rows: make([]models.Task, len(rows))}
	for i, r := range rows {
		if r.Row == 0 {
			r.Row = i + 1
		}
		t.rows[i] = r
	}
	return t
}

// NewUnavailableTable returns a table whose reads and writes always fail with
// queue.ErrQueueUnavailable.
func NewUnavailableTable() *Table {
	t := NewTable()
	t.ListErr = fmt.Errorf("%w: mock connection refused", queue.ErrQueueUnavailable)
	t.WriteFunc = func(_ context.Context, _ int, _ queue.Column, _ string) error {
		return fmt.Errorf("%w: mock connection refused", queue.ErrQueueUnavailable)
	}
	return t
}

func (t *Table) ListRows(_ context.Context) ([]models.Task, error) {
	if t.ListErr != nil {
		return nil, t.ListErr
	}

	t.mu.Lock()
	rows := make([]models.Task, len(t.rows))
	copy(rows, t.rows)
	t.mu.Unlock()

	if t.AfterList != nil {
		t.AfterList()
	}
	return rows, nil
}

func (t *Table) ReadCell(_ context.Context, row int, col queue.Column) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, err := t.index(row, col)
	if err != nil {
		return "", err
	}
	return queue.Cell(t.rows[i], col), nil
}

func (t *Table) WriteCell(ctx context.Context, row int, col queue.Column, value string) error {
	if t.WriteFunc != nil {
		if err := t.WriteFunc(ctx, row, col, value); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	i, err := t.index(row, col)
	if err != nil {
		return err
	}
	queue.SetCell(&t.rows[i], col, value)
	t.writes = append(t.writes, Write{Row: row, Col: col, Value: value})
	return nil
}

// AppendRow adds an unset row after the last one.
func (t *Table) AppendRow(_ context.Context, description, params string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := 1
	for _, r := range t.rows {
		if r.Row >= next {
			next = r.Row + 1
		}
	}
	t.rows = append(t.rows, models.Task{Row: next, Description: description, Params: params})
	return next, nil
}

// Rows returns a copy of the current table contents.
func (t *Table) Rows() []models.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	rows := make([]models.Task, len(t.rows))
	copy(rows, t.rows)
	return rows
}

// Row returns a copy of the row with the given index.
func (t *Table) Row(row int) (models.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.rows {
		if r.Row == row {
			return r, true
		}
	}
	return models.Task{}, false
}

// Writes returns every successful write in call order.
func (t *Table) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := make([]Write, len(t.writes))
	copy(w, t.writes)
	return w
}

// WritesTo returns the successful writes that targeted row.
func (t *Table) WritesTo(row int) []Write {
	var out []Write
	for _, w := range t.Writes() {
		if w.Row == row {
			out = append(out, w)
		}
	}
	return out
}

func (t *Table) index(row int, col queue.Column) (int, error) {
	if !col.Valid() {
		return 0, fmt.Errorf("%w: unknown column %d", queue.ErrQueueSchema, int(col))
	}
	for i, r := range t.rows {
		if r.Row == row {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: row %d not found", queue.ErrQueueSchema, row)
}

// Compile-time checks.
var (
	_ queue.Table    = (*Table)(nil)
	_ queue.Appender = (*Table)(nil)
)
