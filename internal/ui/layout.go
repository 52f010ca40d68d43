package ui

import "github.com/charmbracelet/lipgloss"

// ComposeLayout puts the radar panel on the left and the safety panel above
// the vessel list on the right, with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, radarPanel, safetyPanel, vesselList, statusBar string) string {
	side := lipgloss.JoinVertical(lipgloss.Left, safetyPanel, vesselList)
	middle := lipgloss.JoinHorizontal(lipgloss.Top, radarPanel, side)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}
