package bluetooth

import (
	"context"
	"math"
	"math/rand"
	"time"

	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/presence"
)

// MockSource is the presence source name for simulated vessels.
const MockSource = "demo"

type motion int

// Crossing vessels pass straight through own ship's starting position.
// Radio vessels carry no position, only RSSI.
const (
	motionCircle motion = iota
	motionCross
	motionAnchored
	motionRadio
)

var mockVesselTemplates = []struct {
	Name   string
	Motion motion
}{
	{"Sea Breeze", motionCircle},
	{"Blue Heron", motionCircle},
	{"Wanderer", motionCircle},
	{"Salty Dog", motionCircle},
	{"Osprey", motionCircle},
	{"Kingfisher", motionCross},
	{"Dolphin", motionCross},
	{"Serenity", motionAnchored},
	{"Halcyon", motionAnchored},
	{"Nomad", motionRadio},
	{"Tern", motionRadio},
}

type mockVessel struct {
	id       string
	motion   motion
	radius   float64 // meters from origin
	phase    float64 // radians
	speed    float64 // m/s along the path
	rssi     float64
	active   bool
	distress bool
}

// MockFleet simulates nearby vessels around a reference position for demo
// mode. Updates go straight to the sink as if a transport delivered them.
type MockFleet struct {
	sink   presence.Sink
	origin func() (geo.Point, bool)
	fleet  []mockVessel
	rng    *rand.Rand
	cancel context.CancelFunc
	anchor geo.Point
	fixed  bool
}

// NewMockFleet creates between lo and hi vessels. origin reports own
// position; the fleet settles around the first position it sees.
func NewMockFleet(sink presence.Sink, origin func() (geo.Point, bool), lo, hi int, seed int64) *MockFleet {
	rng := rand.New(rand.NewSource(seed))
	if hi < lo {
		hi = lo
	}
	total := lo + rng.Intn(hi-lo+1)
	if total > len(mockVesselTemplates) {
		total = len(mockVesselTemplates)
	}

	// The crossing vessel is always present so the collision alarm has
	// something to do.
	picked := []int{5}
	for _, idx := range rng.Perm(len(mockVesselTemplates)) {
		if len(picked) >= total {
			break
		}
		if idx != 5 {
			picked = append(picked, idx)
		}
	}

	fleet := make([]mockVessel, len(picked))
	for i, ti := range picked {
		tmpl := mockVesselTemplates[ti]
		v := mockVessel{
			id:     MockSource + ":" + tmpl.Name,
			motion: tmpl.Motion,
			phase:  rng.Float64() * 2 * math.Pi,
			active: true,
			rssi:   -60 - rng.Float64()*30,
		}
		switch tmpl.Motion {
		case motionCircle:
			v.radius = 70 + rng.Float64()*110
			v.speed = 1 + rng.Float64()*3
		case motionCross:
			v.radius = 150
			v.speed = 2 + rng.Float64()*2
		case motionAnchored:
			v.radius = 60 + rng.Float64()*100
			v.speed = 0.1
		}
		fleet[i] = v
	}
	return &MockFleet{sink: sink, origin: origin, fleet: fleet, rng: rng}
}

// Start begins emitting updates every interval until Stop.
func (f *MockFleet) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.loop(ctx, interval)
}

func (f *MockFleet) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.Emit(now.Sub(start).Seconds(), now)
		}
	}
}

// Emit publishes the fleet's state t seconds into the simulation.
func (f *MockFleet) Emit(t float64, now time.Time) {
	if !f.fixed {
		p, ok := f.origin()
		if !ok {
			return
		}
		f.anchor, f.fixed = p, true
	}

	for i := range f.fleet {
		v := &f.fleet[i]

		// Vessels occasionally drop out of range and come back.
		if v.motion != motionCross && f.rng.Float64() < 0.003 {
			v.active = !v.active
			if !v.active {
				f.sink.Apply(presence.Event{Kind: presence.EventRemove, ID: v.id})
			}
		}
		if !v.active {
			continue
		}
		if v.motion == motionCircle && f.rng.Float64() < 0.001 {
			v.distress = !v.distress
		}
		f.sink.Apply(presence.Event{Kind: presence.EventUpsert, Peer: f.peer(v, t, now)})
	}
}

func (f *MockFleet) peer(v *mockVessel, t float64, now time.Time) presence.Peer {
	p := presence.Peer{
		ID:        v.id,
		Distress:  v.distress,
		UpdatedAt: now,
		Source:    MockSource,
	}

	var bearing, dist, heading float64
	switch v.motion {
	case motionCircle:
		angle := v.phase + t*v.speed/v.radius
		bearing = angle * 180 / math.Pi
		dist = v.radius
		heading = bearing + 90
	case motionCross:
		// Back and forth along a line through the origin, period 4r/speed.
		period := 4 * v.radius / v.speed
		u := math.Mod(t, period) / period
		offset := v.radius * (4*math.Abs(u-0.5) - 1) // -r..r
		axis := v.phase * 180 / math.Pi
		bearing, dist = axis, offset
		if offset < 0 {
			bearing, dist = axis+180, -offset
		}
		heading = axis
		if u < 0.5 {
			heading = axis + 180
		}
	case motionAnchored:
		bearing = v.phase*180/math.Pi + 5*math.Sin(t/30)
		dist = v.radius
		heading = bearing + 90*math.Sin(t/45)
	case motionRadio:
		p.RSSI = int16(v.rssi + 4*math.Sin(t*0.5+v.phase) + (f.rng.Float64()-0.5)*3)
		p.HeadingDegrees = f.rng.Float64() * 360
		return p
	}

	pt := geo.Destination(f.anchor, geo.NormalizeDegrees(bearing), dist)
	p.Lat, p.Lng, p.Located = pt.Lat, pt.Lng, true
	p.HeadingDegrees = geo.NormalizeDegrees(heading)
	p.SpeedMetersPerSec = v.speed
	return p
}

// Stop halts the simulation.
func (f *MockFleet) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}
