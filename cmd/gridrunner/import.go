package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/kiranshivaraju/gridrunner/internal/queue/provider"
	"github.com/kiranshivaraju/gridrunner/pkg/taskparams"
)

var importCmd = &cli.Command{
	Name:      "import",
	Usage:     "append tasks from a CSV file of description,params rows",
	ArgsUsage: "FILE.csv",
	Description: `Each CSV record holds a description and a params cell, e.g.

     "skipgram, 5 epochs",skipgram;5;3-6;1;10

   A first record of "description,params" is treated as a header. Every
   params cell is validated before anything is written. Only the postgres
   and redis backends support importing; fill a spreadsheet by hand.`,
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("import takes exactly one CSV file", 2)
		}

		f, err := os.Open(c.Args().First())
		if err != nil {
			return err
		}
		defer f.Close()

		tasks, err := readImport(f)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		q, err := provider.Open(c.Context, cfg.Queue)
		if err != nil {
			return fmt.Errorf("open queue: %w", err)
		}
		defer q.Close()

		app, ok := q.Appender()
		if !ok {
			return fmt.Errorf("the %s backend does not support import", q.Backend)
		}

		for _, t := range tasks {
			row, err := app.AppendRow(c.Context, t.description, t.params)
			if err != nil {
				return fmt.Errorf("appending line %d: %w", t.line, err)
			}
			slog.Debug("task imported", "row", row, "line", t.line)
		}
		fmt.Fprintf(c.App.Writer, "imported %d tasks\n", len(tasks))
		return nil
	},
}

type importTask struct {
	line        int
	description string
	params      string
}

// readImport parses and validates the whole file. Any invalid line fails the
// import as a whole.
func readImport(r io.Reader) ([]importTask, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	var (
		tasks []importTask
		errs  []error
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if len(tasks) == 0 && len(errs) == 0 && isImportHeader(rec) {
			continue
		}

		params := strings.TrimSpace(rec[1])
		if _, err := taskparams.Parse(params); err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", line, err))
			continue
		}
		tasks = append(tasks, importTask{line: line, description: strings.TrimSpace(rec[0]), params: params})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(tasks) == 0 {
		return nil, errors.New("no tasks to import")
	}
	return tasks, nil
}

func isImportHeader(rec []string) bool {
	return strings.EqualFold(strings.TrimSpace(rec[0]), "description") &&
		strings.EqualFold(strings.TrimSpace(rec[1]), "params")
}
