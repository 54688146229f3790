package grid

import (
	"sort"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// Tally counts the rows of a table by status and by claiming worker.
type Tally struct {
	Total      int           `json:"total"`
	Unset      int           `json:"unset"`
	Processing int           `json:"processing"`
	Computed   int           `json:"computed"`
	Other      int           `json:"other"`
	Workers    []WorkerTally `json:"workers"`
}

// WorkerTally is the number of rows one worker has claimed and finished.
type WorkerTally struct {
	Worker     string `json:"worker"`
	Processing int    `json:"processing"`
	Computed   int    `json:"computed"`
}

// CountRows builds a Tally. Workers are sorted by name.
func CountRows(rows []models.Task) Tally {
	t := Tally{Total: len(rows)}
	byWorker := map[string]int{}
	for _, r := range rows {
		switch r.Status {
		case models.StatusUnset:
			t.Unset++
			continue
		case models.StatusProcessing:
			t.Processing++
		case models.StatusComputed:
			t.Computed++
		default:
			t.Other++
		}

		worker := r.ClaimedBy
		i, ok := byWorker[worker]
		if !ok {
			i = len(t.Workers)
			byWorker[worker] = i
			t.Workers = append(t.Workers, WorkerTally{Worker: worker})
		}
		switch r.Status {
		case models.StatusProcessing:
			t.Workers[i].Processing++
		case models.StatusComputed:
			t.Workers[i].Computed++
		}
	}

	sort.Slice(t.Workers, func(a, b int) bool { return t.Workers[a].Worker < t.Workers[b].Worker })
	return t
}

// Done is the fraction of rows that are Computed, in [0, 1].
func (t Tally) Done() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Computed) / float64(t.Total)
}
