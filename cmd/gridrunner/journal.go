package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/kiranshivaraju/gridrunner/internal/journal"
	"github.com/kiranshivaraju/gridrunner/pkg/models"
	"github.com/kiranshivaraju/gridrunner/pkg/taskparams"
)

var journalCmd = &cli.Command{
	Name:  "journal",
	Usage: "list the models this worker has trained",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "tail", Usage: "only show the last N records; 0 shows all"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		recs, err := journal.ReadAll(cfg.LogFile)
		if err != nil {
			return err
		}
		if n := c.Int("tail"); n > 0 && n < len(recs) {
			recs = recs[len(recs)-n:]
		}
		return printJournal(c.App.Writer, recs)
	},
}

func printJournal(w io.Writer, recs []models.ResultRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tPARAMS\tMODEL")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.DT, taskparams.Suffix(r.Params), r.Vectors)
	}
	return tw.Flush()
}
