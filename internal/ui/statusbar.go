package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusInfo feeds the bottom status bar.
type StatusInfo struct {
	Peers     int
	Radar     bool
	Offline   bool
	Sharing   bool
	Recording bool
	Links     []string // connected presence transports
	SweepDeg  float64
	MaxRange  float64
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, s StatusInfo) string {
	var flags []string
	flag := func(on bool, onText, offText string) {
		if on {
			flags = append(flags, StyleStatusOK.Render(onText))
		} else if offText != "" {
			flags = append(flags, StyleStatusWarn.Render(offText))
		}
	}
	flag(s.Radar, "[RADAR]", "[RADAR OFF]")
	flag(!s.Offline, "", "[OFFLINE]")
	flag(s.Sharing && !s.Offline, "[SHARING]", "")
	flag(s.Recording, "[REC]", "")

	links := "none"
	if len(s.Links) > 0 {
		links = strings.Join(s.Links, ",")
	}
	info := fmt.Sprintf(" Vessels: %d  Links: %s  Sweep: %ddeg  Range: 0-%.0fm",
		s.Peers, links, int(s.SweepDeg), s.MaxRange)

	content := strings.Join(flags, "") + StyleStatusBar.Foreground(ColorGreen).Render(info)

	gap := width - lipgloss.Width(content)
	if gap < 0 {
		gap = 0
	}
	return StyleStatusBar.Width(width).Render(content + strings.Repeat(" ", gap))
}
