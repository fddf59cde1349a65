package cmd

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
)

// statusLabel renders a fixed-width status tag so file names line up.
func statusLabel(status string) string {
	tag := lipgloss.NewStyle().Width(8).Render(status)
	switch status {
	case "OK", "VALID", "SIGNED":
		return okStyle.Render(tag)
	case "BROKEN", "FAILED":
		return failStyle.Render(tag)
	default:
		return warnStyle.Render(tag)
	}
}
