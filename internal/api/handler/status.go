package handler

import (
	"net/http"

	"github.com/kiranshivaraju/gridrunner/internal/api/response"
	"github.com/kiranshivaraju/gridrunner/internal/grid"
)

// StatusSource is the handler's view of the running coordinator.
type StatusSource interface {
	Snapshot() grid.Snapshot
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/status.
func NewStatusHandler(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, src.Snapshot())
	}
}
