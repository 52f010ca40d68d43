package radar

import (
	"math"
	"sort"
	"strings"

	"sea-radar.klederson.com/internal/bluetooth"
	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/presence"
)

// Contact is a vessel as placed on the radar relative to own ship.
type Contact struct {
	ID        string
	Label     string
	Angle     float64 // Radians, 0=north, clockwise
	Distance  float64 // Meters from own ship
	Speed     float64 // m/s
	Heading   float64 // Degrees
	Distress  bool
	Risk      bool // Current collision countdown target
	Estimated bool // Placed from signal strength, bearing unknown
}

// Contacts places peers around self. Peers without a position are placed by
// RSSI when they have one and dropped otherwise. Located peers are dropped
// while own position is unknown. The result is sorted nearest first.
func Contacts(self geo.Point, haveSelf bool, peers []presence.Peer, riskID string) []Contact {
	out := make([]Contact, 0, len(peers))
	for _, p := range peers {
		c := Contact{
			ID:       p.ID,
			Label:    Callsign(p.ID),
			Speed:    p.SpeedMetersPerSec,
			Heading:  p.HeadingDegrees,
			Distress: p.Distress,
			Risk:     riskID != "" && p.ID == riskID,
		}
		switch {
		case p.Located && p.Point().Valid():
			if !haveSelf {
				continue
			}
			c.Distance = geo.DistanceMeters(self, p.Point())
			c.Angle = geo.Radians(geo.BearingDegrees(self, p.Point()))
		case p.RSSI != 0:
			c.Distance = bluetooth.SignalRange(p.RSSI)
			c.Angle = bluetooth.IDToAngle(p.ID)
			c.Estimated = true
		default:
			continue
		}
		if math.IsNaN(c.Distance) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

// Callsign shortens a peer id for display.
func Callsign(id string) string {
	name := id
	if i := strings.IndexByte(name, ':'); i >= 0 && i < len(name)-1 {
		name = name[i+1:]
	}
	if len(name) > maxLabelLen {
		name = name[:maxLabelLen]
	}
	return name
}
