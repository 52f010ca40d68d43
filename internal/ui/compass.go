package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sea-radar.klederson.com/internal/config"
	"sea-radar.klederson.com/internal/radar"
)

type compassCell struct {
	ch    byte
	style *lipgloss.Style
}

type compassGrid struct {
	w, h   int
	fcx    float64
	fcy    float64
	rx, ry float64
	cells  [][]compassCell
}

var (
	compassRing   = lipgloss.NewStyle().Foreground(ColorDimGreen)
	compassAxis   = lipgloss.NewStyle().Foreground(lipgloss.Color("#003300"))
	compassMark   = lipgloss.NewStyle().Foreground(ColorMatrixGreen).Bold(true)
	compassCourse = lipgloss.NewStyle().Foreground(ColorMidGreen)
)

// RenderCompass draws a pointer from own ship to the selected vessel. The
// vessel sits on the bearing line, closer to the centre the nearer it is,
// with a tick showing its course when it is under way. Returns "" when the
// box is too small.
func RenderCompass(width, height int, c *radar.Contact) string {
	if c == nil || width < 9 || height < 5 {
		return ""
	}
	g := newCompassGrid(width, height)
	g.drawRose()

	cx, cy := g.polar(0, 0)
	g.set(cx, cy, '@', &compassMark)

	if c.Estimated {
		// Bearing unknown: only the range is meaningful.
		g.set(cx+2, cy, radar.Symbol(c)[0], &compassMark)
		return g.String()
	}

	frac := math.Min(c.Distance/config.MaxRange, 1)
	frac = 0.25 + 0.7*frac
	lineSty := lipgloss.NewStyle().Foreground(lipgloss.Color(proximityColor(c.Distance)))
	steps := max(2, int(math.Max(g.rx, g.ry)*frac))
	var tipCol, tipRow int
	for s := 1; s <= steps; s++ {
		t := frac * float64(s) / float64(steps)
		col, row := g.polar(c.Angle, t)
		g.set(col, row, lineChar(c.Angle), &lineSty)
		tipCol, tipRow = col, row
	}

	targetSty := lipgloss.NewStyle().Foreground(lipgloss.Color(proximityColor(c.Distance))).Bold(true)
	if c.Distress {
		targetSty = StyleDistress
	}
	g.set(tipCol, tipRow, radar.Symbol(c)[0], &targetSty)

	if c.Speed > 0 {
		course := c.Heading * math.Pi / 180
		dc, dr := octantStep(course)
		g.set(tipCol+dc, tipRow+dr, lineChar(course), &compassCourse)
	}
	return g.String()
}

func newCompassGrid(w, h int) *compassGrid {
	g := &compassGrid{
		w:   w,
		h:   h,
		fcx: float64(w) / 2,
		fcy: float64(h) / 2,
	}
	g.rx = math.Max(3, g.fcx-2)
	g.ry = math.Max(2, g.fcy-2)
	g.cells = make([][]compassCell, h)
	for i := range g.cells {
		g.cells[i] = make([]compassCell, w)
	}
	return g
}

// polar maps an angle (radians, clockwise from north) and a fraction of the
// ring radius to a cell.
func (g *compassGrid) polar(angle, frac float64) (int, int) {
	col := int(math.Round(g.fcx + frac*g.rx*math.Sin(angle)))
	row := int(math.Round(g.fcy - frac*g.ry*math.Cos(angle)))
	return col, row
}

func (g *compassGrid) set(col, row int, ch byte, sty *lipgloss.Style) {
	if col >= 0 && col < g.w && row >= 0 && row < g.h {
		g.cells[row][col] = compassCell{ch: ch, style: sty}
	}
}

func (g *compassGrid) empty(col, row int) bool {
	return col >= 0 && col < g.w && row >= 0 && row < g.h && g.cells[row][col].ch == 0
}

func (g *compassGrid) drawRose() {
	const steps = 80
	for i := 0; i < steps; i++ {
		a := float64(i) * 2 * math.Pi / steps
		col, row := g.polar(a, 1)
		if g.empty(col, row) {
			g.set(col, row, ringChar(a), &compassRing)
		}
	}

	cx, cy := g.polar(0, 0)
	for r := cy - int(g.ry) + 1; r < cy+int(g.ry); r++ {
		if r != cy && g.empty(cx, r) {
			g.set(cx, r, ':', &compassAxis)
		}
	}
	for c := cx - int(g.rx) + 1; c < cx+int(g.rx); c++ {
		if c != cx && g.empty(c, cy) {
			g.set(c, cy, '.', &compassAxis)
		}
	}

	for i, mark := range []byte{'N', 'E', 'S', 'W'} {
		a := float64(i) * math.Pi / 2
		col := int(math.Round(g.fcx + (g.rx+1)*math.Sin(a)))
		row := int(math.Round(g.fcy - (g.ry+1)*math.Cos(a)))
		g.set(col, row, mark, &compassMark)
	}
}

func (g *compassGrid) String() string {
	var sb strings.Builder
	for row, line := range g.cells {
		for _, cell := range line {
			if cell.ch == 0 {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteString(cell.style.Render(string(cell.ch)))
		}
		if row < g.h-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// octant returns the 8-point sector (0 = north, clockwise) of an angle in
// radians.
func octant(a float64) int {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return int(math.Round(a/(math.Pi/4))) % 8
}

func ringChar(a float64) byte {
	return `-\|/-\|/`[octant(a)]
}

// lineChar is the character for a line heading in direction a.
func lineChar(a float64) byte {
	return `|/-\|/-\`[octant(a)]
}

// octantStep is the one-cell offset in direction a.
func octantStep(a float64) (int, int) {
	steps := [8][2]int{{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}}
	s := steps[octant(a)]
	return s[0], s[1]
}

// proximityColor maps distance in meters to a shade. Inside collision range
// it turns amber.
func proximityColor(meters float64) string {
	switch {
	case meters < 50:
		return "#FFAA00"
	case meters < 100:
		return "#00FF41"
	case meters < 200:
		return "#00CC33"
	case meters < 400:
		return "#00AA22"
	}
	return "#005511"
}

// AngleToDir returns the 8-point compass direction for a bearing in radians.
func AngleToDir(a float64) string {
	return [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}[octant(a)]
}
