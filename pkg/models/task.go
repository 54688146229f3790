// Package models contains shared data models used across the gridrunner codebase.
package models

import "time"

// Status values a task row can hold in the Status column.
const (
	StatusUnset      = ""
	StatusProcessing = "Processing"
	StatusComputed   = "Computed"
)

// Task is one row of the remote task table. Rows are created by whoever
// populates the table; gridrunner only ever writes Status, ClaimedAt and ClaimedBy.
type Task struct {
	Row         int    `json:"row"`
	Description string `json:"description"`
	Params      string `json:"params"`
	Status      string `json:"status"`
	ClaimedAt   string `json:"claimed_at,omitempty"`
	ClaimedBy   string `json:"claimed_by,omitempty"`
}

// Unset reports whether nobody has claimed the task yet.
func (t Task) Unset() bool {
	return t.Status == StatusUnset
}

// TimestampLayout is the layout used for the Timestamp cell and the journal "dt" field.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
