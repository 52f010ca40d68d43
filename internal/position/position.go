// Package position turns raw location fixes into filtered Position values.
package position

import (
	"errors"
	"math"
	"time"

	"sea-radar.klederson.com/internal/geo"
)

// ErrSensorUnavailable is reported once the location provider has failed or
// permission was denied. The tracker emits nothing after that.
var ErrSensorUnavailable = errors.New("position sensor unavailable")

// Sample is a raw fix as delivered by a GPS or geolocation provider.
// Speed and Heading are optional; nil means the provider did not report them.
type Sample struct {
	Lat            float64
	Lng            float64
	AccuracyMeters float64
	Speed          *float64 // m/s
	Heading        *float64 // degrees true
	Timestamp      time.Time
}

// Position is an accepted, normalized fix. Values are immutable once emitted;
// each accepted sample supersedes the previous Position.
type Position struct {
	Lat               float64
	Lng               float64
	AccuracyMeters    float64
	SpeedMetersPerSec *float64
	HeadingDegrees    *float64 // [0, 360) when present
	CapturedAt        time.Time
}

// Point returns the coordinate part of the position.
func (p Position) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

// Speed returns the reported speed or 0 when unknown.
func (p Position) Speed() float64 {
	if p.SpeedMetersPerSec == nil {
		return 0
	}
	return *p.SpeedMetersPerSec
}

// Heading returns the reported heading and whether one is known.
func (p Position) Heading() (float64, bool) {
	if p.HeadingDegrees == nil {
		return 0, false
	}
	return *p.HeadingDegrees, true
}

func normalize(s Sample) (Position, bool) {
	if !(geo.Point{Lat: s.Lat, Lng: s.Lng}).Valid() {
		return Position{}, false
	}
	if s.AccuracyMeters < 0 || math.IsNaN(s.AccuracyMeters) {
		return Position{}, false
	}

	p := Position{
		Lat:            s.Lat,
		Lng:            s.Lng,
		AccuracyMeters: s.AccuracyMeters,
		CapturedAt:     s.Timestamp,
	}
	if s.Speed != nil && !math.IsNaN(*s.Speed) && *s.Speed >= 0 {
		v := *s.Speed
		p.SpeedMetersPerSec = &v
	}
	if s.Heading != nil && !math.IsNaN(*s.Heading) && !math.IsInf(*s.Heading, 0) {
		h := geo.NormalizeDegrees(*s.Heading)
		p.HeadingDegrees = &h
	}
	return p, true
}

// Float is a small helper for building optional sample fields.
func Float(v float64) *float64 {
	return &v
}
