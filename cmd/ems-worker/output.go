package main

import "github.com/charmbracelet/lipgloss"

var (
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF5F5F"))
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FFF87"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD75F"))
)
