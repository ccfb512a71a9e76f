package main

import (
	"fmt"
	"io"

	"github.com/openmined/forcesync/internal/project"
	"github.com/openmined/forcesync/internal/utils"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func newStatusCmd(c *cli) *cobra.Command {
	var format string
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which items changed since the last sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			p, err := c.openProject(nil)
			if err != nil {
				return err
			}
			defer p.Close()

			states, err := p.Status(cmd.Context())
			if err != nil {
				return err
			}
			if !all && format == formatTable {
				states = changedOnly(states)
			}
			return printStatus(cmd.OutOrStdout(), states, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, json or yaml")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list unchanged items too")
	return cmd
}

func changedOnly(states []project.ItemState) []project.ItemState {
	var changed []project.ItemState
	for _, s := range states {
		if s.Changed {
			changed = append(changed, s)
		}
	}
	return changed
}

func printStatus(w io.Writer, states []project.ItemState, format string) error {
	if states == nil {
		states = []project.ItemState{}
	}

	switch format {
	case formatJSON:
		data, err := utils.JSONMarshalIndent(states, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(states); err != nil {
			return err
		}
		return enc.Close()
	case formatTable:
		if len(states) == 0 {
			_, err := fmt.Fprintln(w, gray.Render("Nothing changed"))
			return err
		}
		for _, s := range states {
			fmt.Fprintf(w, "  %s %s\n", stateLabel(s), displayPath(s))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q, want %s, %s or %s", format, formatTable, formatJSON, formatYAML)
	}
}

func stateLabel(s project.ItemState) string {
	label := fmt.Sprintf("%-12s", s.State)
	switch {
	case s.State == project.StateMissing:
		return red.Render(label)
	case s.Changed:
		return yellow.Render(label)
	default:
		return gray.Render(label)
	}
}

func displayPath(s project.ItemState) string {
	if s.Path == "" {
		return s.Key
	}
	return s.Path
}
