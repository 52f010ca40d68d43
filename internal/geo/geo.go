// Package geo holds the distance and bearing math used by the safety engine.
// Everything here is pure and allocation free.
package geo

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used for all great-circle math.
	EarthRadiusMeters = 6371000.0

	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Valid reports whether the point is finite and inside the lat/lng ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceMeters returns the haversine great-circle distance between a and b.
// It is symmetric and DistanceMeters(a, a) == 0. Spherical, not ellipsoidal.
func DistanceMeters(a, b Point) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLat := (b.Lat - a.Lat) * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// EquirectangularMeters approximates the distance between two nearby points
// by projecting onto a plane: the longitude delta is scaled by cos(mean
// latitude). Error stays well under a metre for separations of a few hundred
// metres away from the poles, which covers anchor swing radii. Do not use it
// for long distances.
func EquirectangularMeters(a, b Point) float64 {
	meanLat := (a.Lat + b.Lat) / 2 * degToRad
	x := (b.Lng - a.Lng) * degToRad * math.Cos(meanLat)
	y := (b.Lat - a.Lat) * degToRad
	return EarthRadiusMeters * math.Sqrt(x*x+y*y)
}

// BearingDegrees returns the initial true bearing from a to b in [0, 360).
func BearingDegrees(a, b Point) float64 {
	lat1 := a.Lat * degToRad
	lat2 := b.Lat * degToRad
	dLng := (b.Lng - a.Lng) * degToRad

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return NormalizeDegrees(math.Atan2(y, x) * radToDeg)
}

// Destination returns the point reached by travelling meters along bearing
// (degrees true) from p on the sphere.
func Destination(p Point, bearing, meters float64) Point {
	d := meters / EarthRadiusMeters
	brg := bearing * degToRad
	lat1 := p.Lat * degToRad
	lng1 := p.Lng * degToRad

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	return Point{
		Lat: lat2 * radToDeg,
		Lng: NormalizeLongitude(lng2 * radToDeg),
	}
}

// NormalizeDegrees wraps an angle to [0, 360).
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// math.Mod can hand back 360 for tiny negative inputs after the add.
	if deg >= 360 {
		deg -= 360
	}
	return deg
}

// NormalizeLongitude wraps a longitude to [-180, 180).
func NormalizeLongitude(lng float64) float64 {
	return NormalizeDegrees(lng+180) - 180
}

// AngleDiffDegrees returns the shortest angular distance between two
// headings. Result is in [0, 180].
func AngleDiffDegrees(a, b float64) float64 {
	d := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * degToRad
}
