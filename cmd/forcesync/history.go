package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/openmined/forcesync/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent push and pull runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := c.openProject(nil)
			if err != nil {
				return err
			}
			defer p.Close()

			runs, err := p.History(limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

func printHistory(w io.Writer, runs []*history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, gray.Render("No runs yet"))
		return
	}

	for _, run := range runs {
		fmt.Fprintf(w, "%s %-4s %s %s\n",
			lightGray.Render(fmt.Sprintf("%-16s", humanize.Time(run.StartedAt))),
			run.Direction,
			runStatus(run.Status),
			runDetail(run),
		)
	}
}

func runStatus(status string) string {
	label := fmt.Sprintf("%-15s", status)
	switch status {
	case history.StatusOK:
		return green.Render(label)
	case history.StatusPartial:
		return yellow.Render(label)
	case history.StatusFailed:
		return red.Render(label)
	default:
		return gray.Render(label)
	}
}

func runDetail(run *history.Run) string {
	if run.Error != "" {
		return run.Error
	}
	detail := fmt.Sprintf("%d items", run.Items)
	if run.Direction == history.DirectionPull {
		detail = fmt.Sprintf("%d applied, %d skipped, %d conflicts, %d failed",
			run.Applied, run.Skipped, run.Conflicts, run.Failed)
	}
	if run.JobID != "" {
		detail += " " + lightGray.Render(run.JobID)
	}
	return detail
}
