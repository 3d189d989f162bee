// Package tui implements the live agenda monitor: a small bubbletea program
// showing today's queued reminders, refreshed when the source file changes.
package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6"))

	bodyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))

	firedStyle = lipgloss.NewStyle().
			Faint(true).
			Foreground(lipgloss.Color("8"))

	overdueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	helpStyle = lipgloss.NewStyle().
			Faint(true)
)
