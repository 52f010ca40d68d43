package gps

import (
	"context"
	"math"
	"time"

	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/position"
)

// Simulator swings the vessel on a figure-eight around an anchorage, the
// way a boat yaws on its rode. After DragAfter the whole pattern starts
// moving along DragBearing, so an anchor watch will eventually trip.
type Simulator struct {
	Center      geo.Point
	Swing       float64       // half-width of the figure-eight, meters
	Period      time.Duration // one full figure-eight
	Interval    time.Duration
	DragAfter   time.Duration // zero disables dragging
	DragSpeed   float64       // m/s
	DragBearing float64
	Accuracy    float64
}

// DefaultSimulator anchors off A Coruña with a 25 m swing that starts
// dragging after five minutes.
func DefaultSimulator() *Simulator {
	return &Simulator{
		Center:      geo.Point{Lat: 43.3713, Lng: -8.3960},
		Swing:       25,
		Period:      4 * time.Minute,
		Interval:    time.Second,
		DragAfter:   5 * time.Minute,
		DragSpeed:   0.4,
		DragBearing: 200,
		Accuracy:    4,
	}
}

// Run implements Source.
func (s *Simulator) Run(ctx context.Context, sink Sink) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sink.OnRawPosition(s.SampleAt(0, start))
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sink.OnRawPosition(s.SampleAt(now.Sub(start), now))
		}
	}
}

// SampleAt returns the simulated fix at elapsed time into the run.
func (s *Simulator) SampleAt(elapsed time.Duration, at time.Time) position.Sample {
	center := s.Center
	if s.DragAfter > 0 && elapsed > s.DragAfter {
		dragged := (elapsed - s.DragAfter).Seconds() * s.DragSpeed
		center = geo.Destination(center, s.DragBearing, dragged)
	}

	period := s.Period
	if period <= 0 {
		period = 4 * time.Minute
	}
	omega := 2 * math.Pi / period.Seconds()
	phase := omega * elapsed.Seconds()

	// Lemniscate of Gerono: x = A sin t, y = A sin t cos t.
	east := s.Swing * math.Sin(phase)
	north := s.Swing * math.Sin(phase) * math.Cos(phase)
	dEast := s.Swing * omega * math.Cos(phase)
	dNorth := s.Swing * omega * math.Cos(2*phase)

	p := center
	if d := math.Hypot(east, north); d > 0 {
		p = geo.Destination(center, math.Atan2(east, north)*180/math.Pi, d)
	}
	heading := geo.NormalizeDegrees(math.Atan2(dEast, dNorth) * 180 / math.Pi)

	return position.Sample{
		Lat:            p.Lat,
		Lng:            p.Lng,
		AccuracyMeters: s.Accuracy,
		Speed:          position.Float(math.Hypot(dEast, dNorth)),
		Heading:        position.Float(heading),
		Timestamp:      at,
	}
}
