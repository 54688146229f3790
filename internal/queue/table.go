// Package queue defines the capability every remote task table provides.
//
// The table is the only coordination medium between workers. It offers no
// transactions and no compare-and-set, so anything built on top of it (the
// claimer in particular) is optimistic: a row listed as unset may have been
// claimed by another worker by the time a write lands.
package queue

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// Column is a 1-based column index of the task table.
type Column int

const (
	ColDescription Column = iota + 1
	ColParams
	ColStatus
	ColTimestamp
	ColWorker
)

// Columns lists every column in table order.
var Columns = []Column{ColDescription, ColParams, ColStatus, ColTimestamp, ColWorker}

// Header is the expected header name of each column.
var Header = map[Column]string{
	ColDescription: "Description",
	ColParams:      "Params",
	ColStatus:      "Status",
	ColTimestamp:   "Timestamp",
	ColWorker:      "Worker",
}

func (c Column) String() string {
	if name, ok := Header[c]; ok {
		return name
	}
	return fmt.Sprintf("Column(%d)", int(c))
}

// Valid reports whether c is one of the five table columns.
func (c Column) Valid() bool {
	return c >= ColDescription && c <= ColWorker
}

// Table is the remote task table. Implementations must not cache: every
// ListRows call reflects the remote state at that moment.
type Table interface {
	// ListRows returns every data row in row order.
	ListRows(ctx context.Context) ([]models.Task, error)
	// ReadCell returns the current value of one cell.
	ReadCell(ctx context.Context, row int, col Column) (string, error)
	// WriteCell overwrites one cell.
	WriteCell(ctx context.Context, row int, col Column, value string) error
}

// Cell returns the value of col in task.
func Cell(task models.Task, col Column) string {
	switch col {
	case ColDescription:
		return task.Description
	case ColParams:
		return task.Params
	case ColStatus:
		return task.Status
	case ColTimestamp:
		return task.ClaimedAt
	case ColWorker:
		return task.ClaimedBy
	default:
		return ""
	}
}

// SetCell stores value into the field of task that backs col.
func SetCell(task *models.Task, col Column, value string) {
	switch col {
	case ColDescription:
		task.Description = value
	case ColParams:
		task.Params = value
	case ColStatus:
		task.Status = value
	case ColTimestamp:
		task.ClaimedAt = value
	case ColWorker:
		task.ClaimedBy = value
	}
}

// Appender is implemented by backends that can grow the table themselves.
// Spreadsheet-backed grids are edited by hand and do not implement it.
type Appender interface {
	// AppendRow adds a row with an unset status and returns its row number.
	AppendRow(ctx context.Context, description, params string) (int, error)
}
