package main

import (
	"fmt"

	"github.com/openmined/forcesync/internal/project"
	"github.com/spf13/cobra"
)

func newInitCmd(c *cli) *cobra.Command {
	var src string
	var pull bool
	var keepConflicts bool
	var noMetaXML bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up a project, then pull if it already existed or --pull is set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg := project.DefaultConfig()
			if src != "" {
				cfg.Src = src
			}
			cfg.PullOnInit = pull
			cfg.KeepConflictCopies = keepConflicts
			cfg.CreateMetaXML = !noMetaXML
			if v := c.v.GetString("api_version"); v != "" {
				cfg.APIVersion = v
			}

			p, err := c.openProject(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			existed := !p.IsNew()
			result, err := p.Init(cmd.Context(), c.remote())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if existed {
				fmt.Fprintf(out, "Project already initialized at %s\n", cyan.Render(p.Root))
			} else {
				fmt.Fprintf(out, "Project initialized at %s\n", green.Render(p.Root))
			}
			fmt.Fprintf(out, "Source:  %s\n", cyan.Render(p.SrcDir))
			fmt.Fprintf(out, "Config:  %s\n", cyan.Render(p.ConfigPath))

			if result != nil {
				printPull(out, result)
			}
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVar(&src, "src", "", "source folder, relative to the project root (default src)")
	cmd.Flags().BoolVar(&pull, "pull", false, "pull right after setting up a new project")
	cmd.Flags().BoolVar(&keepConflicts, "keep-conflict-copies", false, "save incoming copies of conflicting items next to them")
	cmd.Flags().BoolVar(&noMetaXML, "no-meta-xml", false, "do not generate missing -meta.xml sidecars on push")

	return cmd
}
