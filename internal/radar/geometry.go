package radar

import (
	"math"

	"sea-radar.klederson.com/internal/config"
)

// Angles on the scope are radians, 0 = north, increasing clockwise.

// cellOffset converts a cell to a square-pixel offset from the centre.
func cellOffset(col, row, centerX, centerY int) (dx, dy float64) {
	return float64(col - centerX), float64(row-centerY) / config.AspectRatio
}

// CellDistance is the distance from a cell to the scope centre in columns,
// corrected for the terminal aspect ratio.
func CellDistance(col, row, centerX, centerY int) float64 {
	return math.Hypot(cellOffset(col, row, centerX, centerY))
}

// CellAngle is the bearing from the scope centre to a cell, in [0, 2π).
func CellAngle(col, row, centerX, centerY int) float64 {
	dx, dy := cellOffset(col, row, centerX, centerY)
	return NormalizeAngle(math.Atan2(dx, -dy))
}

// RingChar picks the character that best follows a range ring at angle.
func RingChar(angle float64) rune {
	sector := int(math.Round(NormalizeAngle(angle)/(math.Pi/4))) % 8
	return []rune(`-/|\-/|\`)[sector]
}

// NormalizeAngle wraps an angle to [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// MetersToRadius scales a range to scope units. Anything past maxRange is
// pinned to the edge so distant vessels stay visible.
func MetersToRadius(meters, maxRange, radarRadius float64) float64 {
	if meters > maxRange {
		return radarRadius
	}
	return meters / maxRange * radarRadius
}

// PolarToCell maps a bearing and a radius in scope units to a terminal
// cell.
func PolarToCell(angle, r float64, centerX, centerY int) (col, row int) {
	col = centerX + int(math.Round(r*math.Sin(angle)))
	row = centerY - int(math.Round(r*math.Cos(angle)*config.AspectRatio))
	return col, row
}
