package radar

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/presence"
)

var home = geo.Point{Lat: 38.7, Lng: -9.1}

func TestContactsPlacesLocatedPeers(t *testing.T) {
	north := geo.Destination(home, 0, 100)
	east := geo.Destination(home, 90, 40)
	peers := []presence.Peer{
		{ID: "ws:far", Lat: north.Lat, Lng: north.Lng, Located: true, SpeedMetersPerSec: 2},
		{ID: "ws:near", Lat: east.Lat, Lng: east.Lng, Located: true, Distress: true},
	}

	cs := Contacts(home, true, peers, "ws:far")
	require.Len(t, cs, 2)

	assert.Equal(t, "ws:near", cs[0].ID, "nearest first")
	assert.InDelta(t, 40, cs[0].Distance, 0.5)
	assert.InDelta(t, math.Pi/2, cs[0].Angle, 0.01)
	assert.True(t, cs[0].Distress)
	assert.False(t, cs[0].Risk)

	assert.InDelta(t, 100, cs[1].Distance, 0.5)
	assert.InDelta(t, 0, cs[1].Angle, 0.01)
	assert.True(t, cs[1].Risk)
	assert.Equal(t, "far", cs[1].Label)
}

func TestContactsWithoutOwnPosition(t *testing.T) {
	peers := []presence.Peer{
		{ID: "ws:a", Lat: 1, Lng: 1, Located: true},
		{ID: "ble:0011223344556677", RSSI: -79},
		{ID: "ws:ghost"},
	}
	cs := Contacts(geo.Point{}, false, peers, "")
	require.Len(t, cs, 1)
	assert.True(t, cs[0].Estimated)
	assert.InDelta(t, 10, cs[0].Distance, 1e-6)
	assert.Equal(t, "00112233", cs[0].Label)
}

func TestCallsign(t *testing.T) {
	assert.Equal(t, "Sea Bree", Callsign("demo:Sea Breeze"))
	assert.Equal(t, "plain", Callsign("plain"))
	assert.Equal(t, "trail:", Callsign("trail:"))
}

func TestSymbol(t *testing.T) {
	assert.Equal(t, "!", Symbol(&Contact{Distress: true, Speed: 3}))
	assert.Equal(t, "?", Symbol(&Contact{Estimated: true}))
	assert.Equal(t, "*", Symbol(&Contact{Speed: 1}))
	assert.Equal(t, "o", Symbol(&Contact{}))
}

func TestPolarToCell(t *testing.T) {
	col, row := PolarToCell(0, 10, 20, 10)
	assert.Equal(t, 20, col)
	assert.Equal(t, 5, row) // aspect corrected
	col, row = PolarToCell(math.Pi/2, 10, 20, 10)
	assert.Equal(t, 30, col)
	assert.Equal(t, 10, row)
}

func TestMetersToRadiusClamps(t *testing.T) {
	assert.Equal(t, 5.0, MetersToRadius(100, 200, 10))
	assert.Equal(t, 10.0, MetersToRadius(500, 200, 10))
}

func TestRenderDrawsContactsAndAnchor(t *testing.T) {
	contacts := []Contact{
		{ID: "a", Label: "Osprey", Angle: 0, Distance: 100, Speed: 2},
		{ID: "b", Label: "Tern", Angle: math.Pi, Distance: 150, Distress: true},
	}
	ov := Overlay{
		MaxRange: 200,
		Anchor:   &AnchorMark{Angle: math.Pi / 2, Distance: 20, Radius: 40},
	}
	out := Render(60, 24, contacts, ov, NewSweep())

	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 24)
	assert.Contains(t, out, "Osprey")
	assert.Contains(t, out, "Tern")
	assert.Contains(t, out, "!")
	assert.Contains(t, out, "A")
	assert.Contains(t, out, "+")
}

func TestRenderTooSmall(t *testing.T) {
	assert.Empty(t, Render(5, 3, nil, Overlay{}, NewSweep()))
}

func TestSweepIntensity(t *testing.T) {
	s := &Sweep{Angle: math.Pi}
	assert.InDelta(t, 1, s.Intensity(math.Pi), 1e-9)
	assert.Zero(t, s.Intensity(0))
	assert.Greater(t, s.Intensity(math.Pi-0.1), 0.0)
}

func TestSweepUpdate(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &Sweep{}
	s.Update(start)
	assert.Zero(t, s.Angle)

	// 20 rpm: a quarter turn takes 750ms.
	s.Update(start.Add(750 * time.Millisecond))
	assert.InDelta(t, 90, s.Degrees(), 1e-6)

	s.Update(start.Add(1500 * time.Millisecond))
	assert.InDelta(t, 180, s.Degrees(), 1e-6)
}
