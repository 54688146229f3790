package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kiranshivaraju/gridrunner/internal/queue"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "undefined table", err: &pgconn.PgError{Code: pgUndefinedTable}, want: queue.ErrQueueSchema},
		{name: "unique violation", err: &pgconn.PgError{Code: pgUniqueViolation}, want: queue.ErrQueueSchema},
		{name: "wrapped unique violation", err: fmt.Errorf("commit: %w", &pgconn.PgError{Code: pgUniqueViolation}), want: queue.ErrQueueSchema},
		{name: "other sqlstate", err: &pgconn.PgError{Code: "53300"}, want: queue.ErrQueueUnavailable},
		{name: "network", err: errors.New("connection reset by peer"), want: queue.ErrQueueUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(context.Background(), "append row", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got: %v", tt.want, got)
			}
		})
	}
}

func TestClassifyError_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := classifyError(ctx, "append row", errors.New("anything"))
	if !errors.Is(got, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", got)
	}
}
