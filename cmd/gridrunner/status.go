package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/kiranshivaraju/gridrunner/internal/grid"
	"github.com/kiranshivaraju/gridrunner/internal/queue/provider"
)

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "show how far the grid has progressed",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "print the counts as JSON"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		q, err := provider.Open(c.Context, cfg.Queue)
		if err != nil {
			return fmt.Errorf("open queue: %w", err)
		}
		defer q.Close()

		rows, err := q.Table.ListRows(c.Context)
		if err != nil {
			return fmt.Errorf("listing rows: %w", err)
		}

		tally := grid.CountRows(rows)
		if c.Bool("json") {
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(tally)
		}
		return printTally(c.App.Writer, tally)
	},
}

func printTally(w io.Writer, t grid.Tally) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "rows\t%s\n", humanize.Comma(int64(t.Total)))
	fmt.Fprintf(tw, "computed\t%s\t(%.1f%%)\n", humanize.Comma(int64(t.Computed)), t.Done()*100)
	fmt.Fprintf(tw, "processing\t%s\n", humanize.Comma(int64(t.Processing)))
	fmt.Fprintf(tw, "unset\t%s\n", humanize.Comma(int64(t.Unset)))
	if t.Other > 0 {
		fmt.Fprintf(tw, "other\t%s\n", humanize.Comma(int64(t.Other)))
	}

	if len(t.Workers) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "WORKER\tPROCESSING\tCOMPUTED")
		for _, wt := range t.Workers {
			name := wt.Worker
			if name == "" {
				name = "(unknown)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\n", name, wt.Processing, wt.Computed)
		}
	}
	return tw.Flush()
}
