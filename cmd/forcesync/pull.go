package main

import (
	"fmt"
	"io"

	"github.com/openmined/forcesync/internal/packager"
	"github.com/openmined/forcesync/internal/project"
	"github.com/spf13/cobra"
)

func newPullCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Retrieve the items the manifest selects and merge them into the source folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := c.openProject(nil)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.Pull(cmd.Context(), c.remote())
			if err != nil {
				return err
			}
			printPull(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func printPull(w io.Writer, result *project.PullResult) {
	for _, r := range result.Results {
		switch {
		case r.IsConflict():
			line := fmt.Sprintf("  %s %s %s", yellow.Render("!"), r.Path, lightGray.Render("conflict, "+r.Side.String()))
			if r.ConflictCopy != "" {
				line += lightGray.Render(" incoming saved to " + r.ConflictCopy)
			}
			fmt.Fprintln(w, line)
		case r.Status == packager.StatusFailed:
			fmt.Fprintf(w, "  %s %s %s\n", red.Render("✗"), r.Path, lightGray.Render(fmt.Sprint(r.Err)))
		case r.Status == packager.StatusSkipped:
			fmt.Fprintf(w, "  %s %s %s\n", gray.Render("-"), r.Path, lightGray.Render(string(r.Reason)))
		}
	}

	s := result.Summary
	status := green.Render("Pulled")
	if s.Conflicts > 0 || s.Failed > 0 {
		status = yellow.Render("Pulled with problems")
	}
	fmt.Fprintf(w, "%s %d applied, %d skipped, %d conflicts, %d failed in retrieve %s\n",
		status, s.Applied, s.Skipped, s.Conflicts, s.Failed, result.RetrieveID)
}
