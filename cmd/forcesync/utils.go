package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/openmined/forcesync/internal/project"
)

var (
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
)

// openProject resolves the project under --root. cfg only applies to a project
// that has no config file yet.
func (c *cli) openProject(cfg *project.Config) (*project.Project, error) {
	return project.New(c.v.GetString("root"), cfg)
}
