// Package presence tracks which other vessels are visible on the realtime
// channel and publishes the local vessel's own presence.
package presence

import (
	"math"
	"time"

	"sea-radar.klederson.com/internal/geo"
)

// Peer is one vessel's broadcast presence snapshot: position, heading, speed
// and distress flag. The same shape is used for the local vessel's outgoing
// presence.
type Peer struct {
	ID                string
	Lat               float64
	Lng               float64
	HeadingDegrees    float64
	SpeedMetersPerSec float64
	Distress          bool
	UpdatedAt         time.Time

	// Located is false when the presence update carried no usable lat/lng.
	// Such peers stay listed but are never considered for collision risk.
	Located bool

	// Source names the transport that delivered the update (ws, redis, ble, demo).
	Source string

	// RSSI is the received signal strength of the last radio sighting in
	// dBm. Zero for network transports.
	RSSI int16
}

// Point returns the peer's coordinate.
func (p Peer) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lng: p.Lng}
}

// Usable reports whether the peer has a valid position and a finite speed.
func (p Peer) Usable() bool {
	if !p.Located || !p.Point().Valid() {
		return false
	}
	return !math.IsNaN(p.SpeedMetersPerSec) && !math.IsInf(p.SpeedMetersPerSec, 0)
}

// EventKind distinguishes presence channel events.
type EventKind int

const (
	EventUpsert EventKind = iota
	EventRemove
	EventSync
)

func (k EventKind) String() string {
	switch k {
	case EventRemove:
		return "remove"
	case EventSync:
		return "sync"
	default:
		return "upsert"
	}
}

// Event is a single presence channel event as delivered by a transport.
type Event struct {
	Kind  EventKind
	Peer  Peer   // EventUpsert
	ID    string // EventRemove
	Peers []Peer // EventSync
}

// Sink receives presence events from transports. Registry implements it.
type Sink interface {
	Apply(Event)
}
