package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/gridrunner/internal/api/response"
	"github.com/kiranshivaraju/gridrunner/internal/journal"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// NewJournalHandler returns an http.HandlerFunc for GET /api/v1/journal.
// Records are served in file order, paginated with page and limit.
func NewJournalHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page", 1)
		if err != nil || page < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return
		}
		limit, err := queryInt(r, "limit", defaultJournalLimit)
		if err != nil || limit < 1 || limit > maxJournalLimit {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"limit must be between 1 and "+strconv.Itoa(maxJournalLimit), nil)
			return
		}

		records, err := journal.ReadAll(path)
		if err != nil {
			slog.Error("reading journal", "path", path, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read journal", nil)
			return
		}

		total := len(records)
		start := min((page-1)*limit, total)
		end := min(start+limit, total)

		response.Collection(w, records[start:end], response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: end < total,
		})
	}
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
