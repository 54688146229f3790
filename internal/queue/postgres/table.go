// Package postgres implements queue.Table on a grid_tasks table, one row per
// task, partitioned by grid name so several grids can share a database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// SQLSTATE codes classifyError knows about.
const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

var columnNames = map[queue.Column]string{
	queue.ColDescription: "description",
	queue.ColParams:      "params",
	queue.ColStatus:      "status",
	queue.ColTimestamp:   "claimed_at",
	queue.ColWorker:      "claimed_by",
}

// Table implements queue.Table using pgx/v5.
type Table struct {
	pool *pgxpool.Pool
	grid string
}

// NewTable creates a Table bound to one grid.
func NewTable(pool *pgxpool.Pool, grid string) *Table {
	return &Table{pool: pool, grid: grid}
}

func (t *Table) ListRows(ctx context.Context) ([]models.Task, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT row_index, description, params, status, claimed_at, claimed_by
		 FROM grid_tasks WHERE grid = $1 ORDER BY row_index`, t.grid)
	if err != nil {
		return nil, classifyError(ctx, "list rows", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(&task.Row, &task.Description, &task.Params, &task.Status,
			&task.ClaimedAt, &task.ClaimedBy); err != nil {
			return nil, classifyError(ctx, "scan row", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(ctx, "list rows", err)
	}
	return tasks, nil
}

func (t *Table) ReadCell(ctx context.Context, row int, col queue.Column) (string, error) {
	name, ok := columnNames[col]
	if !ok {
		return "", fmt.Errorf("%w: unknown column %s", queue.ErrQueueSchema, col)
	}

	var value string
	err := t.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM grid_tasks WHERE grid = $1 AND row_index = $2`, name),
		t.grid, row,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: grid %q has no row %d", queue.ErrQueueSchema, t.grid, row)
	}
	if err != nil {
		return "", classifyError(ctx, "read cell", err)
	}
	return value, nil
}

func (t *Table) WriteCell(ctx context.Context, row int, col queue.Column, value string) error {
	name, ok := columnNames[col]
	if !ok {
		return fmt.Errorf("%w: unknown column %s", queue.ErrQueueSchema, col)
	}

	tag, err := t.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE grid_tasks SET %s = $3, updated_at = NOW() WHERE grid = $1 AND row_index = $2`, name),
		t.grid, row, value)
	if err != nil {
		return classifyError(ctx, "write cell", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: grid %q has no row %d", queue.ErrQueueSchema, t.grid, row)
	}
	return nil
}

// AppendRow adds a task after the current last row of the grid. Appends to
// the same grid are serialized with a transaction-scoped advisory lock.
func (t *Table) AppendRow(ctx context.Context, description, params string) (int, error) {
	var row int
	err := pgx.BeginFunc(ctx, t.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('grid_tasks:' || $1))`, t.grid); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO grid_tasks (grid, row_index, description, params)
			 SELECT $1, COALESCE(MAX(row_index), 0) + 1, $2, $3 FROM grid_tasks WHERE grid = $1
			 RETURNING row_index`,
			t.grid, description, params,
		).Scan(&row)
	})
	if err != nil {
		return 0, classifyError(ctx, "append row", err)
	}
	return row, nil
}

// classifyError maps pgx errors to queue errors. A cancelled context is
// passed through untouched.
func classifyError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return fmt.Errorf("%w: %s: %v (run migrations)", queue.ErrQueueSchema, op, err)
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s: row index already taken: %v", queue.ErrQueueSchema, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", queue.ErrQueueUnavailable, op, err)
}

var (
	_ queue.Table    = (*Table)(nil)
	_ queue.Appender = (*Table)(nil)
)
