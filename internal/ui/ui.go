// Package ui holds terminal styles for the goflow-syncd CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderPass renders a success marker or value.
func RenderPass(s string) string {
	return passStyle.Render(s)
}

// RenderWarn renders a warning marker or value.
func RenderWarn(s string) string {
	return warnStyle.Render(s)
}

// RenderFail renders an error marker or value.
func RenderFail(s string) string {
	return failStyle.Render(s)
}

// RenderAccent renders an emphasized value.
func RenderAccent(s string) string {
	return accentStyle.Render(s)
}

// RenderMuted renders de-emphasized detail text.
func RenderMuted(s string) string {
	return mutedStyle.Render(s)
}

// RenderStatus colors an engine status by severity.
func RenderStatus(s string) string {
	switch s {
	case "running", "syncing":
		return passStyle.Render(s)
	case "paused":
		return warnStyle.Render(s)
	case "error":
		return failStyle.Render(s)
	default:
		return mutedStyle.Render(s)
	}
}
