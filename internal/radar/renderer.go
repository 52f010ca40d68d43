package radar

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sea-radar.klederson.com/internal/config"
)

var (
	colorBright    = lipgloss.Color("#00FF41")
	colorMid       = lipgloss.Color("#008F11")
	colorDim       = lipgloss.Color("#004A0A")
	colorVessel    = lipgloss.Color("#00FFAA")
	colorEstimated = lipgloss.Color("#33FF66")
	colorDistress  = lipgloss.Color("#FF3333")
	colorRisk      = lipgloss.Color("#FFAA00")
	colorAnchor    = lipgloss.Color("#66CCFF")
	colorLabelDim  = lipgloss.Color("#008F11")

	styleCenter    = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
	styleRing      = lipgloss.NewStyle().Foreground(colorMid)
	styleDot       = lipgloss.NewStyle().Foreground(colorDim)
	styleVessel    = lipgloss.NewStyle().Foreground(colorVessel).Bold(true)
	styleEstimated = lipgloss.NewStyle().Foreground(colorEstimated)
	styleDistress  = lipgloss.NewStyle().Foreground(colorDistress).Bold(true)
	styleRisk      = lipgloss.NewStyle().Foreground(colorRisk).Bold(true)
	styleAnchor    = lipgloss.NewStyle().Foreground(colorAnchor).Bold(true)
	styleSwing     = lipgloss.NewStyle().Foreground(colorAnchor)
	styleLabel     = lipgloss.NewStyle().Foreground(colorVessel)
	styleLabelDim  = lipgloss.NewStyle().Foreground(colorLabelDim)
	styleHighlight = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
)

const maxLabelLen = 8

// AnchorMark places the anchor and its swing circle relative to own ship.
type AnchorMark struct {
	Angle    float64 // Radians from own ship to the anchor
	Distance float64 // Meters from own ship to the anchor
	Radius   float64 // Swing radius in meters
	Alarm    bool
}

// Overlay carries everything drawn on the scope besides contacts.
type Overlay struct {
	MaxRange float64 // Outer ring in meters
	Anchor   *AnchorMark
}

type contactPos struct {
	col, row int
	c        *Contact
	label    string
	labelCol int
	labelRow int
}

type scope struct {
	width, height    int
	centerX, centerY int
	radius           float64
	rings            []float64
	maxRange         float64
	sweep            *Sweep
	contacts         []contactPos
	anchor           *AnchorMark
	anchorCol        int
	anchorRow        int
	swingRadius      float64
}

// Render produces the complete radar display as a styled string.
func Render(width, height int, contacts []Contact, ov Overlay, sweep *Sweep) string {
	if width < 10 || height < 5 {
		return ""
	}

	s := scope{
		width:    width,
		height:   height,
		centerX:  width / 2,
		centerY:  height / 2,
		maxRange: ov.MaxRange,
		sweep:    sweep,
		anchor:   ov.Anchor,
	}
	if s.maxRange <= 0 {
		s.maxRange = config.MaxRange
	}
	s.radius = float64(min(s.centerX-1, int(float64(s.centerY-1)/config.AspectRatio)))
	if s.radius < 3 {
		s.radius = 3
	}

	s.rings = make([]float64, config.RingCount)
	for i := range s.rings {
		s.rings[i] = s.radius * float64(i+1) / float64(config.RingCount)
	}
	if s.anchor != nil {
		r := MetersToRadius(s.anchor.Distance, s.maxRange, s.radius)
		s.anchorCol, s.anchorRow = PolarToCell(s.anchor.Angle, r, s.centerX, s.centerY)
		s.swingRadius = s.anchor.Radius / s.maxRange * s.radius
	}

	// Pre-compute contact positions and labels with collision avoidance
	s.contacts = s.placeContacts(contacts)

	// Build a lookup map for label cells: key = row*width+col → index into contacts + char offset
	type labelCell struct {
		idx     int
		charIdx int
	}
	labelMap := make(map[int]labelCell)
	for i, cp := range s.contacts {
		if cp.label == "" {
			continue
		}
		for ci := 0; ci < len(cp.label); ci++ {
			key := cp.labelRow*width + cp.labelCol + ci
			labelMap[key] = labelCell{idx: i, charIdx: ci}
		}
	}

	var sb strings.Builder
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			key := row*width + col
			if lc, ok := labelMap[key]; ok {
				cp := s.contacts[lc.idx]
				sb.WriteString(s.renderLabel(cp.c, col, row, cp.label[lc.charIdx]))
				continue
			}
			sb.WriteString(s.renderCell(col, row))
		}
		if row < height-1 {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// placeContacts computes positions and resolves label collisions.
func (s *scope) placeContacts(contacts []Contact) []contactPos {
	out := make([]contactPos, 0, len(contacts))

	// Track occupied row segments: map[row] → list of (startCol, endCol)
	type segment struct{ start, end int }
	occupied := make(map[int][]segment)
	free := func(row, col, n int) bool {
		for _, seg := range occupied[row] {
			if col < seg.end && col+n > seg.start {
				return false
			}
		}
		return true
	}

	for i := range contacts {
		c := &contacts[i]
		r := MetersToRadius(c.Distance, s.maxRange, s.radius)
		dc, dr := PolarToCell(c.Angle, r, s.centerX, s.centerY)

		label := c.Label
		lc := dc + 2
		if lc+len(label) >= s.width {
			lc = dc - len(label) - 1
		}
		if lc < 0 {
			lc = 0
		}

		// Right of the symbol, then one row below, then one above.
		lr := dr
		switch {
		case free(dr, lc, len(label)):
		case free(dr+1, lc, len(label)):
			lr = dr + 1
		case free(dr-1, lc, len(label)):
			lr = dr - 1
		default:
			label = ""
		}

		out = append(out, contactPos{
			col:      dc,
			row:      dr,
			c:        c,
			label:    label,
			labelCol: lc,
			labelRow: lr,
		})
		occupied[dr] = append(occupied[dr], segment{dc, dc + 1})
		if label != "" {
			occupied[lr] = append(occupied[lr], segment{lc, lc + len(label)})
		}
	}
	return out
}

func (s *scope) renderLabel(c *Contact, col, row int, ch byte) string {
	str := string(ch)
	switch {
	case c.Distress:
		return styleDistress.Render(str)
	case c.Risk:
		return styleRisk.Render(str)
	}
	if s.sweep.Intensity(CellAngle(col, row, s.centerX, s.centerY)) > 0.5 {
		return styleHighlight.Render(str)
	}
	if c.Estimated {
		return styleLabelDim.Render(str)
	}
	return styleLabel.Render(str)
}

func (s *scope) renderCell(col, row int) string {
	dist := CellDistance(col, row, s.centerX, s.centerY)
	angle := CellAngle(col, row, s.centerX, s.centerY)

	for _, cp := range s.contacts {
		if col == cp.col && row == cp.row {
			return s.renderContact(cp.c, angle)
		}
	}

	if s.anchor != nil {
		if col == s.anchorCol && row == s.anchorRow {
			return styleAnchor.Render("A")
		}
		if s.swingRadius > 0 && dist <= s.radius {
			d := CellDistance(col, row, s.anchorCol, s.anchorRow)
			if math.Abs(d-s.swingRadius) < 0.5 {
				if s.anchor.Alarm {
					return styleDistress.Render(":")
				}
				return styleSwing.Render(":")
			}
		}
	}

	if dist > s.radius+0.5 {
		return " "
	}

	if col == s.centerX && row == s.centerY {
		return styleCenter.Render("+")
	}

	if col == s.centerX && dist <= s.radius {
		return s.renderSweepChar('|', angle)
	}
	if row == s.centerY && dist <= s.radius {
		return s.renderSweepChar('-', angle)
	}

	for _, ringR := range s.rings {
		if math.Abs(dist-ringR) < 0.8 {
			return s.renderSweepChar(RingChar(angle), angle)
		}
	}

	if dist <= s.radius {
		return s.renderSweepChar('.', angle)
	}

	return " "
}

// Symbol returns the radar character for a contact.
func Symbol(c *Contact) string {
	switch {
	case c.Distress:
		return "!"
	case c.Estimated:
		return "?"
	case c.Speed > 0.5:
		return "*"
	default:
		return "o"
	}
}

func (s *scope) renderContact(c *Contact, cellAngle float64) string {
	sym := Symbol(c)
	switch {
	case c.Distress:
		return styleDistress.Render(sym)
	case c.Risk:
		return styleRisk.Render(sym)
	case s.sweep.Intensity(cellAngle) > 0.5:
		return styleHighlight.Render(sym)
	case c.Estimated:
		return styleEstimated.Render(sym)
	}
	return styleVessel.Render(sym)
}

func (s *scope) renderSweepChar(ch rune, angle float64) string {
	color := sweepColor(s.sweep.Intensity(angle))
	if color == "" {
		if ch == '.' {
			return styleDot.Render(".")
		}
		return styleRing.Render(string(ch))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(ch))
}

func sweepColor(intensity float64) string {
	if intensity <= 0 {
		return ""
	}
	if intensity > 0.8 {
		return "#00FF41"
	}
	if intensity > 0.5 {
		return "#00CC33"
	}
	if intensity > 0.3 {
		return "#00AA22"
	}
	return "#005511"
}

// RenderLegend produces the radar legend line.
func RenderLegend(width int) string {
	legend := "   " +
		styleVessel.Render("* moving") + "  " +
		styleVessel.Render("o still") + "  " +
		styleEstimated.Render("? signal") + "  " +
		styleDistress.Render("! distress") + "  " +
		styleAnchor.Render("A anchor")

	pad := (width - lipgloss.Width(legend)) / 2
	if pad < 0 {
		pad = 0
	}
	return strings.Repeat(" ", pad) + legend
}
