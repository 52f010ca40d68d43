package bluetooth

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/bluetooth"

	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/presence"
)

type recordingSink struct {
	mu     sync.Mutex
	events []presence.Event
}

func (s *recordingSink) Apply(ev presence.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []presence.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]presence.Event(nil), s.events...)
}

func TestBeaconRoundTrip(t *testing.T) {
	id := BeaconIDFor("vessel-1")
	in := presence.Peer{
		Lat:               -33.8567844,
		Lng:               151.2152967,
		HeadingDegrees:    271.25,
		SpeedMetersPerSec: 3.42,
		Distress:          true,
		Located:           true,
	}
	data := EncodeBeacon(id, in)
	require.Len(t, data, 21)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	gotID, out, err := DecodeBeacon(data, now)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, id.PeerID(), out.ID)
	assert.InDelta(t, in.Lat, out.Lat, 1e-7)
	assert.InDelta(t, in.Lng, out.Lng, 1e-7)
	assert.InDelta(t, 271.25, out.HeadingDegrees, 1e-9)
	assert.InDelta(t, 3.42, out.SpeedMetersPerSec, 1e-9)
	assert.True(t, out.Distress)
	assert.True(t, out.Located)
	assert.Equal(t, Source, out.Source)
	assert.Equal(t, now, out.UpdatedAt)
}

func TestBeaconWithoutPosition(t *testing.T) {
	id := BeaconIDFor("vessel-2")
	data := EncodeBeacon(id, presence.Peer{Lat: math.NaN(), Located: true, SpeedMetersPerSec: -1})
	_, out, err := DecodeBeacon(data, time.Time{})
	require.NoError(t, err)
	assert.False(t, out.Located)
	assert.False(t, out.Distress)
	assert.Zero(t, out.SpeedMetersPerSec)
}

func TestBeaconClampsSpeedAndHeading(t *testing.T) {
	data := EncodeBeacon(BeaconID{}, presence.Peer{HeadingDegrees: -90, SpeedMetersPerSec: 1e6})
	_, out, err := DecodeBeacon(data, time.Time{})
	require.NoError(t, err)
	assert.InDelta(t, 270, out.HeadingDegrees, 1e-9)
	assert.InDelta(t, 655.35, out.SpeedMetersPerSec, 1e-9)
}

func TestDecodeBeaconRejectsGarbage(t *testing.T) {
	_, _, err := DecodeBeacon([]byte{1, 2, 3}, time.Time{})
	assert.True(t, errors.Is(err, ErrNotBeacon))

	bad := make([]byte, 21)
	bad[16], bad[17] = 0xFF, 0xFF // 655.35 degrees
	_, _, err = DecodeBeacon(bad, time.Time{})
	assert.True(t, errors.Is(err, ErrNotBeacon))
}

func TestBeaconIDIsStable(t *testing.T) {
	assert.Equal(t, BeaconIDFor("abc"), BeaconIDFor("abc"))
	assert.NotEqual(t, BeaconIDFor("abc"), BeaconIDFor("abd"))
	assert.Regexp(t, `^ble:[0-9a-f]{16}$`, BeaconIDFor("abc").PeerID())
}

func TestScannerObserveAndEvict(t *testing.T) {
	log, _ := test.NewNullLogger()
	sink := &recordingSink{}
	self := BeaconIDFor("me")
	s := NewScanner(nil, sink, self, log)

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	other := BeaconIDFor("other")
	assert.True(t, s.Observe(EncodeBeacon(other, presence.Peer{}), -70, now))
	assert.False(t, s.Observe(EncodeBeacon(self, presence.Peer{}), -40, now), "own beacon")
	assert.False(t, s.Observe([]byte("nope"), -40, now))

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, presence.EventUpsert, events[0].Kind)
	assert.Equal(t, other.PeerID(), events[0].Peer.ID)
	assert.Equal(t, int16(-70), events[0].Peer.RSSI)

	assert.Zero(t, s.Evict(30*time.Second, now.Add(29*time.Second)))
	assert.Equal(t, 1, s.Evict(30*time.Second, now.Add(31*time.Second)))
	events = sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, presence.EventRemove, events[1].Kind)
	assert.Equal(t, other.PeerID(), events[1].ID)

	assert.Zero(t, s.Evict(30*time.Second, now.Add(time.Hour)), "already evicted")
}

func TestScannerFeedsRegistry(t *testing.T) {
	log, _ := test.NewNullLogger()
	reg := presence.NewRegistry(BeaconIDFor("me").PeerID())
	s := NewScanner(nil, reg, BeaconIDFor("me"), log)

	now := time.Now()
	s.Observe(EncodeBeacon(BeaconIDFor("a"), presence.Peer{Distress: true}), -80, now)
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, 1, reg.CountDistress())

	s.Evict(time.Second, now.Add(2*time.Second))
	assert.Zero(t, reg.Count())
}

type fakeAdvertisement struct {
	mu         sync.Mutex
	configured []bluetooth.AdvertisementOptions
	running    bool
	startErr   error
}

func (f *fakeAdvertisement) Configure(o bluetooth.AdvertisementOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, o)
	return nil
}

func (f *fakeAdvertisement) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeAdvertisement) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	return nil
}

func TestAdvertiserPublish(t *testing.T) {
	fake := &fakeAdvertisement{}
	id := BeaconIDFor("me")
	a := &Advertiser{adv: fake, id: id, name: "Albatross"}

	require.NoError(t, a.Publish(context.Background(), presence.Peer{Lat: 1, Lng: 2, Located: true}))
	require.NoError(t, a.Publish(context.Background(), presence.Peer{Lat: 1, Lng: 2, Located: true, Distress: true}))
	assert.True(t, fake.running)
	require.Len(t, fake.configured, 2)

	last := fake.configured[1]
	assert.Equal(t, "Albatross", last.LocalName)
	require.Len(t, last.ManufacturerData, 1)
	assert.Equal(t, CompanyID, last.ManufacturerData[0].CompanyID)
	_, p, err := DecodeBeacon(last.ManufacturerData[0].Data, time.Time{})
	require.NoError(t, err)
	assert.True(t, p.Distress)

	require.NoError(t, a.Stop())
	assert.False(t, fake.running)
	require.NoError(t, a.Stop())
}

func TestAdvertiserErrors(t *testing.T) {
	fake := &fakeAdvertisement{startErr: errors.New("busy")}
	a := &Advertiser{adv: fake}
	assert.EqualError(t, a.Publish(context.Background(), presence.Peer{}), "busy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Publish(ctx, presence.Peer{}), context.Canceled)
}

func TestMockFleetWaitsForOrigin(t *testing.T) {
	sink := &recordingSink{}
	var (
		mu    sync.Mutex
		known bool
	)
	origin := func() (geo.Point, bool) {
		mu.Lock()
		defer mu.Unlock()
		return geo.Point{Lat: 38.7, Lng: -9.1}, known
	}
	f := NewMockFleet(sink, origin, 5, 8, 1)
	f.Emit(0, time.Now())
	assert.Empty(t, sink.all())

	mu.Lock()
	known = true
	mu.Unlock()
	f.Emit(1, time.Now())
	n := len(sink.all())
	assert.GreaterOrEqual(t, n, 4)
	assert.LessOrEqual(t, n, 16)
}

func TestMockFleetCrossingVesselComesClose(t *testing.T) {
	sink := &recordingSink{}
	origin := geo.Point{Lat: 38.7, Lng: -9.1}
	f := NewMockFleet(sink, func() (geo.Point, bool) { return origin, true }, 5, 5, 42)

	closest := math.Inf(1)
	for sec := 0; sec < 300; sec++ {
		f.Emit(float64(sec), time.Now())
	}
	for _, ev := range sink.all() {
		if ev.Kind != presence.EventUpsert || ev.Peer.ID != MockSource+":Kingfisher" {
			continue
		}
		require.True(t, ev.Peer.Usable())
		if d := geo.DistanceMeters(origin, ev.Peer.Point()); d < closest {
			closest = d
		}
		assert.Greater(t, ev.Peer.SpeedMetersPerSec, 0.5)
	}
	assert.Less(t, closest, 50.0)
}

func TestIDToAngleRange(t *testing.T) {
	for _, id := range []string{"a", "b", "ble:0011223344556677"} {
		a := IDToAngle(id)
		assert.GreaterOrEqual(t, a, 0.0)
		assert.LessOrEqual(t, a, 2*math.Pi)
		assert.Equal(t, a, IDToAngle(id))
	}
}

func TestSignalRange(t *testing.T) {
	assert.InDelta(t, 1.0, SignalRange(-59), 1e-9)
	assert.InDelta(t, 10.0, SignalRange(-79), 1e-9)
	assert.Equal(t, 0.1, SignalRange(5))
	assert.Equal(t, 0.1, SignalRange(-20))
}
