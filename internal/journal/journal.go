// Package journal appends one JSON line per completed job to a local file.
// Lines are never rewritten.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// ErrJournalWrite is matched by every failed Append.
var ErrJournalWrite = errors.New("journal write failed")

const maxLine = 1 << 20

// Journal is safe for concurrent use within one process. Each record is
// written with a single write call on a file opened in append mode, so lines
// from several processes sharing a path do not interleave mid-line.
type Journal struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Path() string { return j.path }

// Append writes rec as one line at the end of the journal.
func (j *Journal) Append(rec models.ResultRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding record: %w", ErrJournalWrite, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", ErrJournalWrite, j.path, err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %w", ErrJournalWrite, j.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", ErrJournalWrite, j.path, err)
	}
	return nil
}

// ReadAll parses every line of the journal at path. A missing file is an
// empty journal.
func ReadAll(path string) ([]models.ResultRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.ResultRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	records := []models.ResultRecord{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec models.ResultRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("journal %s line %d: %w", path, n, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	return records, nil
}
