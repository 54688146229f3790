package claim_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/gridrunner/internal/claim"
	"github.com/kiranshivaraju/gridrunner/internal/queue"
	"github.com/kiranshivaraju/gridrunner/internal/queue/mock"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

var fixedNow = time.Date(2024, 2, 17, 10, 30, 0, 123456000, time.UTC)

func clock() time.Time { return fixedNow }

func TestClaim_FirstUnsetRow(t *testing.T) {
	tbl := mock.NewTable(
		models.Task{Params: "cbow;5;3-6;1;5", Status: models.StatusComputed},
		models.Task{Params: "cbow;5;3-6;1;5", Status: models.StatusProcessing},
		models.Task{Params: "skipgram;10;2-5;2;10"},
		models.Task{Params: "cbow;1;1-2;1;1"},
	)
	c := claim.New(tbl, "node-1", claim.WithClock(clock))

	task, err := c.Claim(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, 3, task.Row)
	assert.Equal(t, "skipgram;10;2-5;2;10", task.Params)
	assert.Equal(t, models.StatusProcessing, task.Status)
	assert.Equal(t, "2024-02-17 10:30:00.123456", task.ClaimedAt)
	assert.Equal(t, "node-1", task.ClaimedBy)

	assert.Equal(t, []mock.Write{
		{Row: 3, Col: queue.ColStatus, Value: "Processing"},
		{Row: 3, Col: queue.ColTimestamp, Value: "2024-02-17 10:30:00.123456"},
		{Row: 3, Col: queue.ColWorker, Value: "node-1"},
	}, tbl.Writes())
}

func TestClaim_Exhausted(t *testing.T) {
	tbl := mock.NewTable(
		models.Task{Status: models.StatusComputed},
		models.Task{Status: models.StatusProcessing},
	)

	task, err := claim.New(tbl, "node-1").Claim(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, task)
	assert.Empty(t, tbl.Writes())
}

func TestClaim_EmptyTable(t *testing.T) {
	task, err := claim.New(mock.NewTable(), "node-1").Claim(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestClaim_NeverReturnsClaimedRow(t *testing.T) {
	tbl := mock.NewTable(
		models.Task{Status: models.StatusProcessing, ClaimedBy: "other"},
		models.Task{Status: "Computed"},
		models.Task{Status: "garbage"},
	)

	task, err := claim.New(tbl, "node-1").Claim(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestClaim_VetRejectionLeavesRowUntouched(t *testing.T) {
	tbl := mock.NewTable(
		models.Task{Params: "cbow;5;x-y;1"},
		models.Task{Params: "cbow;5;3-6;1;5"},
	)

	var vetted []int
	vet := func(task models.Task) error {
		vetted = append(vetted, task.Row)
		if task.Row == 1 {
			return errors.New("malformed")
		}
		return nil
	}

	task, err := claim.New(tbl, "node-1").Claim(context.Background(), vet)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, 2, task.Row)
	assert.Equal(t, []int{1, 2}, vetted)
	assert.Empty(t, tbl.WritesTo(1))

	row1, _ := tbl.Row(1)
	assert.True(t, row1.Unset())
}

func TestClaim_SingleWorkerNeverDoubleClaims(t *testing.T) {
	tbl := mock.NewTable(
		models.Task{Params: "a"},
		models.Task{Params: "b"},
		models.Task{Params: "c"},
	)
	c := claim.New(tbl, "node-1")

	seen := map[int]bool{}
	for {
		task, err := c.Claim(context.Background(), nil)
		require.NoError(t, err)
		if task == nil {
			break
		}
		assert.False(t, seen[task.Row], "row %d claimed twice", task.Row)
		seen[task.Row] = true
	}
	assert.Len(t, seen, 3)
}

// staleTable keeps listing every row as unset no matter what was written.
type staleTable struct {
	*mock.Table
	snapshot []models.Task
}

func (s *staleTable) ListRows(context.Context) ([]models.Task, error) {
	return s.snapshot, nil
}

func TestClaim_StaleListingDoesNotReclaimOwnRow(t *testing.T) {
	rows := []models.Task{{Row: 1, Params: "a"}, {Row: 2, Params: "b"}}
	tbl := &staleTable{Table: mock.NewTable(rows...), snapshot: rows}
	c := claim.New(tbl, "node-1")

	first, err := c.Claim(context.Background(), nil)
	require.NoError(t, err)
	second, err := c.Claim(context.Background(), nil)
	require.NoError(t, err)
	third, err := c.Claim(context.Background(), nil)
	require.NoError(t, err)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, 1, first.Row)
	assert.Equal(t, 2, second.Row)
	assert.Nil(t, third)
}

// Two workers that both list before either writes will both claim the same
// row. This documents the race; it is not a guarantee of exclusivity.
func TestClaim_ConcurrentWorkersMayClaimSameRow(t *testing.T) {
	tbl := mock.NewTable(models.Task{Params: "cbow;5;3-6;1;5"})

	var listed sync.WaitGroup
	listed.Add(2)
	tbl.AfterList = func() {
		listed.Done()
		listed.Wait()
	}

	workers := []*claim.Claimer{
		claim.New(tbl, "node-a"),
		claim.New(tbl, "node-b"),
	}

	results := make([]*models.Task, len(workers))
	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(i int, w *claim.Claimer) {
			defer wg.Done()
			task, err := w.Claim(context.Background(), nil)
			assert.NoError(t, err)
			results[i] = task
		}(i, w)
	}
	wg.Wait()

	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, 1, results[0].Row)
	assert.Equal(t, 1, results[1].Row)
	assert.Len(t, tbl.WritesTo(1), 6)

	row, _ := tbl.Row(1)
	assert.Equal(t, models.StatusProcessing, row.Status)
	assert.Contains(t, []string{"node-a", "node-b"}, row.ClaimedBy)
}

func TestClaim_ListError(t *testing.T) {
	_, err := claim.New(mock.NewUnavailableTable(), "node-1").Claim(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrQueueUnavailable)
}

func TestClaim_WriteError(t *testing.T) {
	tbl := mock.NewTable(models.Task{Params: "a"})
	tbl.WriteFunc = func(_ context.Context, _ int, col queue.Column, _ string) error {
		if col == queue.ColTimestamp {
			return queue.ErrQueueUnavailable
		}
		return nil
	}

	task, err := claim.New(tbl, "node-1").Claim(context.Background(), nil)
	assert.Nil(t, task)
	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrQueueUnavailable)
	assert.Contains(t, err.Error(), "row 1")
}

func TestClaim_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tbl := mock.NewTable(models.Task{Params: "a"})
	_, err := claim.New(tbl, "node-1").Claim(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tbl.Writes())
}
