package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/openmined/forcesync/internal/project"
	"github.com/spf13/cobra"
)

func newPushCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Deploy the items changed since the last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := c.openProject(nil)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.Push(cmd.Context(), c.remote())
			if result != nil {
				printPush(cmd.OutOrStdout(), result)
			}
			return err
		},
	}
}

func printPush(w io.Writer, result *project.PushResult) {
	if result.NothingChanged {
		fmt.Fprintln(w, gray.Render("Nothing changed"))
		return
	}

	for _, key := range result.Items {
		fmt.Fprintf(w, "  %s %s\n", cyan.Render("↑"), key)
	}

	if result.Deploy == nil {
		return
	}
	if failures := result.Deploy.Failures(); len(failures) > 0 {
		for _, m := range failures {
			fmt.Fprintf(w, "  %s %s %s\n", red.Render("✗"), m.FileName, lightGray.Render(m.Problem))
		}
		fmt.Fprintf(w, "%s deploy %s %s\n", red.Render("Rejected"), result.Deploy.ID, lightGray.Render(result.Deploy.Status))
		return
	}
	fmt.Fprintf(w, "%s %d items (%s) in deploy %s\n",
		green.Render("Pushed"), len(result.Items), humanize.Bytes(uint64(result.Size)), result.Deploy.ID)
}
