package grid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiranshivaraju/gridrunner/internal/grid"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

func TestCountRows(t *testing.T) {
	rows := []models.Task{
		{Row: 1, Status: models.StatusComputed, ClaimedBy: "b"},
		{Row: 2, Status: models.StatusProcessing, ClaimedBy: "a"},
		{Row: 3, Status: models.StatusComputed, ClaimedBy: "a"},
		{Row: 4},
		{Row: 5},
		{Row: 6, Status: "Broken", ClaimedBy: "c"},
	}

	got := grid.CountRows(rows)

	assert.Equal(t, 6, got.Total)
	assert.Equal(t, 2, got.Unset)
	assert.Equal(t, 1, got.Processing)
	assert.Equal(t, 2, got.Computed)
	assert.Equal(t, 1, got.Other)
	assert.Equal(t, []grid.WorkerTally{
		{Worker: "a", Processing: 1, Computed: 1},
		{Worker: "b", Computed: 1},
		{Worker: "c"},
	}, got.Workers)
	assert.InDelta(t, 2.0/6.0, got.Done(), 1e-9)
}

func TestCountRows_Empty(t *testing.T) {
	got := grid.CountRows(nil)
	assert.Equal(t, 0, got.Total)
	assert.Empty(t, got.Workers)
	assert.Zero(t, got.Done())
}
