package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"sea-radar.klederson.com/internal/radar"
	"sea-radar.klederson.com/internal/safety"
)

const knotsPerMPS = 1.943844

// SafetyView is what the safety panel shows.
type SafetyView struct {
	Snapshot safety.Snapshot
	Distress int            // peers currently in distress
	Selected *radar.Contact // vessel under the list cursor
	Notice   string         // last rejected command
	Now      time.Time
}

// Alarming reports whether anything needs the skipper's attention.
func (v SafetyView) Alarming() bool {
	s := v.Snapshot
	return s.Emergency.Active || s.Collision.Counting ||
		s.Anchor.Phase() == safety.AnchorTriggered || v.Distress > 0
}

// RenderSafetyPanel renders position, anchor watch, collision countdown and
// SOS state, plus a pointer to the selected vessel.
func RenderSafetyPanel(v SafetyView, width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	s := v.Snapshot

	lines := []string{
		StylePanelTitle.Render("SAFETY"),
		StyleSeparator.Render(strings.Repeat("-", innerW)),
	}
	field := func(label, value string) {
		lines = append(lines, StyleLabel.Render(fmt.Sprintf(" %-9s", label))+value)
	}

	// Position
	switch {
	case s.SensorFailed && !s.HasPosition:
		field("GPS", StyleDistress.Render("UNAVAILABLE"))
	case !s.HasPosition:
		field("GPS", StyleStatusWarn.Render("waiting for fix"))
	default:
		p := s.Position
		field("GPS", StyleValue.Render(FormatCoord(p.Lat, p.Lng)))
		motion := fmt.Sprintf("%.1fkn", p.Speed()*knotsPerMPS)
		if h, ok := p.Heading(); ok {
			motion += fmt.Sprintf("  %03.0f°", h)
		}
		if p.AccuracyMeters > 0 {
			motion += fmt.Sprintf("  ±%.0fm", p.AccuracyMeters)
		}
		field("", StyleValue.Render(motion))
	}

	// Anchor
	switch phase := s.Anchor.Phase(); phase {
	case safety.AnchorInactive:
		field("ANCHOR", StyleHelp.Render("up"))
	default:
		label := fmt.Sprintf("%s r=%.0fm", phase, s.Anchor.RadiusMeters)
		sty := StyleAnchor
		if phase == safety.AnchorTriggered {
			sty = StyleStatusAlarm
			label = "DRAGGING " + label
		}
		field("ANCHOR", sty.Render(label))
		if s.HasDrift {
			field("DRIFT", renderDriftBar(s.DriftMeters, s.Anchor.RadiusMeters, innerW-24)+
				StyleValue.Render(fmt.Sprintf(" %.0fm", s.DriftMeters)))
		}
	}

	// Collision
	if c := s.Collision; c.Counting {
		msg := fmt.Sprintf("SOS IN %ds (%s)", c.CountdownSeconds, c.Cause)
		if c.Cause == safety.CauseRadar {
			msg = fmt.Sprintf("SOS IN %ds %s %.0fm", c.CountdownSeconds, radar.Callsign(c.PeerID), c.DistanceMeters)
		}
		field("COLLIDE", StyleStatusAlarm.Render(msg))
		field("", StyleHelp.Render("[C] cancel"))
	} else {
		field("COLLIDE", StyleHelp.Render("clear"))
	}

	// Emergency
	if e := s.Emergency; e.Active {
		since := ""
		if !v.Now.IsZero() {
			since = " " + formatAge(v.Now.Sub(e.Since))
		}
		field("SOS", StyleStatusAlarm.Render(fmt.Sprintf("ACTIVE %s%s", e.Source, since)))
		field("", StyleHelp.Render("[D] dismiss"))
	} else {
		field("SOS", StyleHelp.Render("off"))
	}

	if v.Distress > 0 {
		field("MAYDAY", StyleDistress.Render(fmt.Sprintf("%d vessel(s) in distress", v.Distress)))
	}
	if v.Notice != "" {
		lines = append(lines, " "+StyleStatusWarn.Render(truncRaw(v.Notice, innerW-1)))
	}

	// Selected vessel pointer
	if c := v.Selected; c != nil {
		lines = append(lines, "", StyleVesselName.Render(" "+c.Label)+StyleVesselMeta.Render(describeContact(c)))
		compassH := height - len(lines) - 3
		if compassH > 11 {
			compassH = 11
		}
		compassW := innerW
		if compassW > compassH*3 {
			compassW = compassH * 3 // keep roughly proportional
		}
		if compass := RenderCompass(compassW, compassH, c); compass != "" {
			prefix := strings.Repeat(" ", max(0, (innerW-compassW)/2))
			for _, cl := range strings.Split(compass, "\n") {
				lines = append(lines, prefix+cl)
			}
		}
	}

	innerH := height - 2
	if len(lines) > innerH {
		lines = lines[:innerH]
	}
	for len(lines) < innerH {
		lines = append(lines, "")
	}

	style := StylePanelActive
	if v.Alarming() {
		style = StylePanelAlarm
	}
	return style.Width(width - 2).Height(innerH).Render(strings.Join(lines, "\n"))
}

func describeContact(c *radar.Contact) string {
	if c.Estimated {
		return fmt.Sprintf("  ~%.0fm by signal", c.Distance)
	}
	return fmt.Sprintf("  %.0fm %s  %.1fkn %03.0f°",
		c.Distance, AngleToDir(c.Angle), c.Speed*knotsPerMPS, c.Heading)
}

// renderDriftBar fills proportionally to drift over radius and turns red
// past the radius.
func renderDriftBar(drift, radius float64, width int) string {
	if width < 10 {
		width = 10
	}
	ratio := 0.0
	if radius > 0 {
		ratio = drift / radius
	}
	color := ColorMatrixGreen
	switch {
	case ratio > 1:
		color = ColorError
	case ratio > 0.75:
		color = ColorWarning
	}
	ratio = math.Max(0, math.Min(ratio, 1))
	filled := int(math.Round(ratio * float64(width)))

	filledPart := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("|", filled))
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(strings.Repeat("-", width-filled))
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

// FormatCoord renders a position as degrees and decimal minutes.
func FormatCoord(lat, lng float64) string {
	ns, ew := "N", "E"
	if lat < 0 {
		ns, lat = "S", -lat
	}
	if lng < 0 {
		ew, lng = "W", -lng
	}
	latDeg, latMin := math.Modf(lat)
	lngDeg, lngMin := math.Modf(lng)
	return fmt.Sprintf("%02.0f°%06.3f'%s %03.0f°%06.3f'%s",
		latDeg, latMin*60, ns, lngDeg, lngMin*60, ew)
}

func formatAge(d time.Duration) string {
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm ago", int(d.Minutes()))
}
