package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sea-radar.klederson.com/internal/config"
)

// RenderMenuBar renders the top menu bar.
func RenderMenuBar(width int, vessel, source string) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"A", "nchor"},
		{"K", "ack"},
		{"S", "OS"},
		{"R", "adar"},
		{"O", "ffline"},
		{"T", "rack"},
		{"Q", "uit"},
	}

	var menu strings.Builder
	for _, k := range keys {
		menu.WriteString("  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label))
	}

	left := StyleMenuKey.Render(title) + menu.String()
	right := StyleMenuLabel.Render(fmt.Sprintf("%s  GPS: %s", vessel, source)) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return StyleMenuBar.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}
