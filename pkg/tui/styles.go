package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Padding(0, 1)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Padding(0, 1)
	readyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Padding(0, 1)
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	timeRefStyle  = lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color("45"))
	selectedStyle = timeRefStyle.Reverse(true)
	sectionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)
