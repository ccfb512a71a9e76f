package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(c *cli) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the project folder, and the source folder unless the config keeps it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := c.openProject(nil)
			if err != nil {
				return err
			}
			if p.IsNew() {
				fmt.Fprintln(cmd.OutOrStdout(), gray.Render("Nothing to reset"))
				return nil
			}

			deletesSrc := p.Config().DeleteSrcOnReset
			if !yes {
				msg := fmt.Sprintf("reset deletes %s", p.Root)
				if deletesSrc {
					msg += fmt.Sprintf(" and %s", p.SrcDir)
				}
				return fmt.Errorf("%s, pass --yes to confirm", msg)
			}

			// logs live under the root and are about to go
			if err := c.close(); err != nil {
				return err
			}
			if err := p.Reset(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", red.Render("Deleted"), p.Root)
			if deletesSrc {
				fmt.Fprintf(out, "%s %s\n", red.Render("Deleted"), p.SrcDir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}
