package feed

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title     lipgloss.Style
	header    lipgloss.Style
	live      lipgloss.Style
	message   lipgloss.Style
	timestamp lipgloss.Style
	kind      lipgloss.Style
	empty     lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		live:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		message:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		kind:      lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		empty:     lipgloss.NewStyle().Faint(true),
	}
}
