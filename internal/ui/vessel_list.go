package ui

import (
	"fmt"
	"strings"

	"sea-radar.klederson.com/internal/radar"
)

// RenderVesselList renders the scrollable list of nearby vessels with the
// cursor row highlighted. Contacts are expected nearest first.
func RenderVesselList(contacts []radar.Contact, width, height int, cursorIndex int) string {
	innerW := width - 4
	if innerW < 10 {
		innerW = 10
	}

	// Fixed header: title + separator
	title := StylePanelTitle.Render(fmt.Sprintf("VESSELS [%d]", len(contacts)))
	separator := StyleSeparator.Render(strings.Repeat("-", innerW))
	headerLines := []string{title, separator}
	headerCount := len(headerLines)

	// Total inner height (excluding border top+bottom)
	innerH := height - 2
	if innerH < headerCount+1 {
		innerH = headerCount + 1
	}
	listSpace := innerH - headerCount

	var listLines []string
	if len(contacts) == 0 {
		listLines = append(listLines, "", StyleHelp.Render(" No vessels..."), StyleHelp.Render(" Listening"))
	} else {
		linesPerVessel := 3 // 2 content + 1 blank
		maxVisible := listSpace / linesPerVessel
		if maxVisible < 1 {
			maxVisible = 1
		}

		// Compute viewport start so cursor is always visible
		viewStart := 0
		if cursorIndex >= maxVisible {
			viewStart = cursorIndex - maxVisible + 1
		}

		for i := viewStart; i < len(contacts) && len(listLines) < listSpace; i++ {
			for _, l := range renderVesselEntry(&contacts[i], innerW, i == cursorIndex) {
				if len(listLines) >= listSpace {
					break
				}
				listLines = append(listLines, l)
			}
		}
	}

	if len(listLines) > listSpace {
		listLines = listLines[:listSpace]
	}
	for len(listLines) < listSpace {
		listLines = append(listLines, "")
	}

	all := append(headerLines, listLines...)
	rendered := StylePanelBorder.Width(width - 2).Height(innerH).Render(strings.Join(all, "\n"))

	// Hard clamp rendered output to exactly `height` lines.
	// lipgloss Height() only sets a minimum; it won't truncate overflow.
	outLines := strings.Split(rendered, "\n")
	if len(outLines) > height {
		outLines = outLines[:height]
	}
	for len(outLines) < height {
		outLines = append(outLines, "")
	}
	return strings.Join(outLines, "\n")
}

func renderVesselEntry(c *radar.Contact, maxW int, isCursor bool) []string {
	symbol := radar.Symbol(c)

	tag := ""
	switch {
	case c.Distress:
		tag = "[MAYDAY]"
	case c.Risk:
		tag = "[RISK]"
	}

	dist := fmt.Sprintf("%.0fm %s", c.Distance, AngleToDir(c.Angle))
	motion := fmt.Sprintf("%.1fkn", c.Speed*knotsPerMPS)
	if c.Estimated {
		dist = fmt.Sprintf("~%.0fm", c.Distance)
		motion = "signal only"
	}

	cursor := "  "
	if isCursor {
		cursor = ">>"
	}

	if isCursor {
		raw1 := truncRaw(fmt.Sprintf("%s %s %s %s", cursor, symbol, c.Label, tag), maxW)
		raw2 := truncRaw(fmt.Sprintf("     %s  %s", dist, motion), maxW)
		return []string{StyleCursorLine.Render(raw1), StyleCursorLine.Render(raw2), ""}
	}

	nameSty := StyleVesselName
	switch {
	case c.Distress:
		nameSty = StyleDistress
	case c.Risk:
		nameSty = StyleRisk
	}
	line1 := fmt.Sprintf("%s %s %s", cursor, nameSty.Render(symbol+" "+c.Label), nameSty.Render(tag))
	line2 := "     " + StyleVesselMeta.Render(truncRaw(dist+"  "+motion, maxW-5))
	return []string{line1, line2, ""}
}

// truncRaw pads or truncates a raw string to exactly w characters.
func truncRaw(s string, w int) string {
	if w < 0 {
		w = 0
	}
	r := []rune(s)
	if len(r) > w {
		return string(r[:w])
	}
	if len(r) < w {
		return s + strings.Repeat(" ", w-len(r))
	}
	return s
}
