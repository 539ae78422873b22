package main

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4"))
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFE66D"))
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	SubtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// swatch renders a colored block for a budget color.
func swatch(hex string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render("■")
}
