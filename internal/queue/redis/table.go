// Package redis implements queue.Table with one Redis hash per row and a
// counter holding the row count.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

var fieldNames = map[queue.Column]string{
	queue.ColDescription: "description",
	queue.ColParams:      "params",
	queue.ColStatus:      "status",
	queue.ColTimestamp:   "claimed_at",
	queue.ColWorker:      "claimed_by",
}

// Table implements queue.Table using go-redis/v9.
type Table struct {
	client *goredis.Client
	grid   string
}

// NewTable connects to redisURL and checks the connection.
func NewTable(ctx context.Context, redisURL, grid string) (*Table, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis URL: %v", queue.ErrQueueUnavailable, err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", queue.ErrQueueUnavailable, err)
	}
	return &Table{client: client, grid: grid}, nil
}

func (t *Table) Close() error {
	return t.client.Close()
}

func (t *Table) ListRows(ctx context.Context) ([]models.Task, error) {
	n, err := t.rowCount(ctx)
	if err != nil {
		return nil, err
	}

	pipe := t.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, n)
	for i := range cmds {
		cmds[i] = pipe.HGetAll(ctx, RowKey(t.grid, i+1))
	}
	if n > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, classifyError(ctx, "list rows", err)
		}
	}

	tasks := make([]models.Task, 0, n)
	for i, cmd := range cmds {
		fields := cmd.Val()
		task := models.Task{Row: i + 1}
		for col, name := range fieldNames {
			queue.SetCell(&task, col, fields[name])
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (t *Table) ReadCell(ctx context.Context, row int, col queue.Column) (string, error) {
	name, err := t.locate(ctx, row, col)
	if err != nil {
		return "", err
	}

	val, err := t.client.HGet(ctx, RowKey(t.grid, row), name).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", classifyError(ctx, "read cell", err)
	}
	return val, nil
}

func (t *Table) WriteCell(ctx context.Context, row int, col queue.Column, value string) error {
	name, err := t.locate(ctx, row, col)
	if err != nil {
		return err
	}

	if err := t.client.HSet(ctx, RowKey(t.grid, row), name, value).Err(); err != nil {
		return classifyError(ctx, "write cell", err)
	}
	return nil
}

// appendScript bumps the row count and fills the new row in one step. A
// reader never sees a counted row without its cells.
//
// KEYS[1] rows counter, ARGV[1] row key prefix, ARGV[2] description, ARGV[3] params.
var appendScript = goredis.NewScript(`
local row = redis.call('INCR', KEYS[1])
redis.call('HSET', ARGV[1] .. row, 'description', ARGV[2], 'params', ARGV[3], 'status', '')
return row
`)

// AppendRow reserves the next row number and stores the row under it.
func (t *Table) AppendRow(ctx context.Context, description, params string) (int, error) {
	n, err := appendScript.Run(ctx, t.client,
		[]string{RowsKey(t.grid)},
		rowKeyPrefix(t.grid), description, params,
	).Int()
	if err != nil {
		return 0, classifyError(ctx, "append row", err)
	}
	return n, nil
}

func (t *Table) rowCount(ctx context.Context) (int, error) {
	n, err := t.client.Get(ctx, RowsKey(t.grid)).Int()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, classifyError(ctx, "row count", err)
	}
	return n, nil
}

// locate validates row and col and returns the hash field for col.
func (t *Table) locate(ctx context.Context, row int, col queue.Column) (string, error) {
	name, ok := fieldNames[col]
	if !ok {
		return "", fmt.Errorf("%w: unknown column %s", queue.ErrQueueSchema, col)
	}

	n, err := t.rowCount(ctx)
	if err != nil {
		return "", err
	}
	if row < 1 || row > n {
		return "", fmt.Errorf("%w: grid %q has no row %d", queue.ErrQueueSchema, t.grid, row)
	}
	return name, nil
}

func classifyError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %v", queue.ErrQueueUnavailable, op, err)
}

var (
	_ queue.Table    = (*Table)(nil)
	_ queue.Appender = (*Table)(nil)
)
