package safety

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sea-radar.klederson.com/internal/alarm"
	"sea-radar.klederson.com/internal/geo"
)

func TestAnchorDriftTriggersOnce(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.eng.DropAnchor(geo.Point{Lat: 0, Lng: 0}, 50))

	require.True(t, h.at(geo.Point{Lat: 0.0005, Lng: 0}))

	snap := h.eng.Snapshot()
	assert.Equal(t, AnchorTriggered, snap.Anchor.Phase())
	assert.InDelta(t, 55.6, snap.DriftMeters, 0.1)
	assert.Equal(t, 1, h.alarms.count(alarm.Anchor))
}

func TestAnchorInsideRadiusStaysArmed(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.eng.DropAnchor(geo.Point{}, 50))

	h.at(geo.Point{Lat: 0.0004}) // ~44 m
	assert.Equal(t, AnchorArmed, h.eng.Snapshot().Anchor.Phase())
	assert.Zero(t, h.alarms.count(alarm.Anchor))
}

func TestAnchorRadiusBoundaryIsStrict(t *testing.T) {
	h := newHarness(t)
	h.at(geo.Point{})
	p := geo.Destination(geo.Point{}, 90, 20)
	radius := geo.DistanceMeters(geo.Point{}, p)
	require.NoError(t, h.eng.DropAnchor(geo.Point{}, radius))

	h.at(p)
	assert.Equal(t, AnchorArmed, h.eng.Snapshot().Anchor.Phase())
}

func TestAnchorDriftMonotonicity(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.eng.DropAnchor(geo.Point{}, 32))

	triggeredAt := -1
	for i := 1; i <= 10; i++ {
		h.at(geo.Destination(geo.Point{}, 45, float64(i*5)))
		if triggeredAt < 0 && h.eng.Snapshot().Anchor.Triggered {
			triggeredAt = i
		}
		if triggeredAt > 0 {
			assert.True(t, h.eng.Snapshot().Anchor.Triggered, "step %d", i)
		}
	}
	assert.Equal(t, 7, triggeredAt, "first fix beyond 32 m is 35 m")
	assert.Equal(t, 1, h.alarms.count(alarm.Anchor))

	h.at(geo.Point{})
	assert.True(t, h.eng.Snapshot().Anchor.Triggered, "returning inside does not clear")
}

func TestAnchorRepeatsUntilAcknowledged(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.eng.DropAnchor(geo.Point{}, 10))
	h.at(geo.Point{Lat: 0.001})
	require.Equal(t, 1, h.alarms.count(alarm.Anchor))

	h.clk.Advance(2999 * time.Millisecond)
	assert.Equal(t, 1, h.alarms.count(alarm.Anchor))
	h.clk.Advance(time.Millisecond)
	assert.Equal(t, 2, h.alarms.count(alarm.Anchor))
	h.clk.Advance(6 * time.Second)
	assert.Equal(t, 4, h.alarms.count(alarm.Anchor))

	require.NoError(t, h.eng.AcknowledgeAnchor())
	h.clk.Advance(time.Minute)
	assert.Equal(t, 4, h.alarms.count(alarm.Anchor))

	snap := h.eng.Snapshot()
	assert.Equal(t, AnchorAcknowledged, snap.Anchor.Phase())
	assert.True(t, snap.Anchor.Active, "anchor stays down")
}

func TestAnchorAcknowledgeRejected(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.eng.AcknowledgeAnchor(), ErrAnchorNotTriggered)

	require.NoError(t, h.eng.DropAnchor(geo.Point{}, 10))
	assert.ErrorIs(t, h.eng.AcknowledgeAnchor(), ErrAnchorNotTriggered)

	h.at(geo.Point{Lat: 0.001})
	require.NoError(t, h.eng.AcknowledgeAnchor())
	assert.ErrorIs(t, h.eng.AcknowledgeAnchor(), ErrAnchorNotTriggered)
}

func TestDropAnchorValidation(t *testing.T) {
	h := newHarness(t)

	for _, r := range []float64{0, -5, nan()} {
		assert.ErrorIs(t, h.eng.DropAnchor(geo.Point{}, r), ErrInvalidRadius)
	}
	assert.ErrorIs(t, h.eng.DropAnchor(geo.Point{Lat: 91}, 10), ErrInvalidPoint)
	assert.Equal(t, AnchorState{}, h.eng.Snapshot().Anchor)

	require.NoError(t, h.eng.DropAnchor(geo.Point{Lat: 1}, 10))
	assert.ErrorIs(t, h.eng.DropAnchor(geo.Point{Lat: 2}, 20), ErrAnchorActive)
	assert.Equal(t, 1.0, h.eng.Snapshot().Anchor.Lat)
}

func TestDropAnchorHere(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.eng.DropAnchorHere(30), ErrNoPosition)

	h.at(geo.Point{Lat: 43.3, Lng: -8.4})
	require.NoError(t, h.eng.DropAnchorHere(30))
	a := h.eng.Snapshot().Anchor
	assert.Equal(t, 43.3, a.Lat)
	assert.Equal(t, -8.4, a.Lng)
	assert.Equal(t, 30.0, a.RadiusMeters)
}

func TestLiftAnchorFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"inactive", func(h *harness) {}},
		{"armed", func(h *harness) {
			h.eng.DropAnchor(geo.Point{}, 10)
		}},
		{"triggered", func(h *harness) {
			h.eng.DropAnchor(geo.Point{}, 10)
			h.at(geo.Point{Lat: 0.001})
		}},
		{"acknowledged", func(h *harness) {
			h.eng.DropAnchor(geo.Point{}, 10)
			h.at(geo.Point{Lat: 0.001})
			h.eng.AcknowledgeAnchor()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(h)

			require.NoError(t, h.eng.LiftAnchor())
			assert.Equal(t, AnchorState{}, h.eng.Snapshot().Anchor)
			assert.False(t, h.eng.Snapshot().HasDrift)
			assert.Zero(t, h.clk.Pending())

			before := h.alarms.count(alarm.Anchor)
			h.clk.Advance(time.Minute)
			assert.Equal(t, before, h.alarms.count(alarm.Anchor))
		})
	}
}

func TestAnchorAutoRearm(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AnchorAutoRearm = true })
	require.NoError(t, h.eng.DropAnchor(geo.Point{}, 10))

	h.at(geo.Point{Lat: 0.001})
	h.at(geo.Point{})
	assert.Equal(t, AnchorTriggered, h.eng.Snapshot().Anchor.Phase(), "unacknowledged alarm keeps sounding")

	require.NoError(t, h.eng.AcknowledgeAnchor())
	h.at(geo.Point{Lat: 0.00003})
	assert.Equal(t, AnchorArmed, h.eng.Snapshot().Anchor.Phase())

	h.at(geo.Point{Lat: 0.001})
	assert.Equal(t, AnchorTriggered, h.eng.Snapshot().Anchor.Phase())
	assert.Equal(t, 2, h.alarms.count(alarm.Anchor))
}

func TestAnchorEquirectangular(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Equirectangular = true })
	require.NoError(t, h.eng.DropAnchor(geo.Point{}, 50))

	h.at(geo.Point{Lat: 0.0005})
	snap := h.eng.Snapshot()
	assert.True(t, snap.Anchor.Triggered)
	assert.InDelta(t, 55.6, snap.DriftMeters, 0.1)
}

func nan() float64 { return math.NaN() }
