package radar

import (
	"math"
	"time"

	"sea-radar.klederson.com/internal/config"
)

// Sweep is the rotating beam. It is purely cosmetic: contacts are plotted
// at their current position regardless of where the beam is.
type Sweep struct {
	Angle float64 // radians, [0, 2π)
	start time.Time
}

// NewSweep starts a beam pointing north.
func NewSweep() *Sweep {
	return &Sweep{start: time.Now()}
}

// Update moves the beam to where it should be at now.
func (s *Sweep) Update(now time.Time) {
	if s.start.IsZero() {
		s.start = now
	}
	turns := now.Sub(s.start).Minutes() * config.SweepSpeedRPM
	s.Angle = NormalizeAngle(turns * 2 * math.Pi)
}

// Degrees returns the beam bearing in degrees.
func (s *Sweep) Degrees() float64 {
	return s.Angle * 180 / math.Pi
}

// Intensity is the afterglow [0, 1] of a cell at cellAngle: 1 under the
// beam, fading linearly to 0 over SweepTrailDeg behind it.
func (s *Sweep) Intensity(cellAngle float64) float64 {
	behind := NormalizeAngle(s.Angle - cellAngle)
	trail := config.SweepTrailDeg * math.Pi / 180
	if behind > trail {
		return 0
	}
	return 1 - behind/trail
}
