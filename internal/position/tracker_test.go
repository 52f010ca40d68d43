package position

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sea-radar.klederson.com/internal/clock"
	"sea-radar.klederson.com/internal/geo"
)

var t0 = time.Date(2024, 7, 14, 9, 30, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestTracker() *Tracker {
	return NewTracker(Config{}, clock.NewMock(t0), quietLogger())
}

func sampleAt(p geo.Point, at time.Time) Sample {
	return Sample{Lat: p.Lat, Lng: p.Lng, AccuracyMeters: 5, Timestamp: at}
}

func TestTrackerAcceptsFirstSample(t *testing.T) {
	tr := newTestTracker()
	p, ok := tr.OnRawSample(sampleAt(geo.Point{Lat: 10, Lng: 10}, t0))
	require.True(t, ok)
	assert.Equal(t, 10.0, p.Lat)
	assert.Equal(t, t0, p.CapturedAt)
}

func TestTrackerMovementFilter(t *testing.T) {
	origin := geo.Point{Lat: 48.38, Lng: -4.49}
	tests := []struct {
		name     string
		meters   float64
		after    time.Duration
		accepted bool
	}{
		{"too close", 1.5, 5 * time.Second, false},
		{"just under the noise floor", 1.99, 5 * time.Second, false},
		{"exactly the interval", 30, time.Second, true},
		{"too soon", 50, 999 * time.Millisecond, false},
		{"both gates fail", 1, 100 * time.Millisecond, false},
		{"far enough and late enough", 2.5, time.Second, true},
		{"long move", 500, 10 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker()
			_, ok := tr.OnRawSample(sampleAt(origin, t0))
			require.True(t, ok)

			next := geo.Destination(origin, 45, tt.meters)
			_, ok = tr.OnRawSample(sampleAt(next, t0.Add(tt.after)))
			assert.Equal(t, tt.accepted, ok)

			last, _ := tr.Last()
			if tt.accepted {
				assert.InDelta(t, next.Lat, last.Lat, 1e-12)
			} else {
				assert.Equal(t, origin.Lat, last.Lat, "rejected sample must not replace the last fix")
			}
		})
	}
}

func TestTrackerGatesMeasureFromLastAccepted(t *testing.T) {
	tr := newTestTracker()
	origin := geo.Point{Lat: 0, Lng: 0}
	_, ok := tr.OnRawSample(sampleAt(origin, t0))
	require.True(t, ok)

	// Small steps never accumulate: each is measured from the accepted origin.
	_, ok = tr.OnRawSample(sampleAt(geo.Destination(origin, 0, 1.5), t0.Add(2*time.Second)))
	assert.False(t, ok)
	_, ok = tr.OnRawSample(sampleAt(geo.Destination(origin, 0, 1.9), t0.Add(4*time.Second)))
	assert.False(t, ok)
	_, ok = tr.OnRawSample(sampleAt(geo.Destination(origin, 0, 3), t0.Add(6*time.Second)))
	assert.True(t, ok)
}

func TestTrackerNormalizesHeading(t *testing.T) {
	tr := newTestTracker()
	s := sampleAt(geo.Point{Lat: 1, Lng: 1}, t0)
	s.Heading = Float(-10)
	s.Speed = Float(2.5)
	p, ok := tr.OnRawSample(s)
	require.True(t, ok)

	h, known := p.Heading()
	require.True(t, known)
	assert.InDelta(t, 350, h, 1e-9)
	assert.Equal(t, 2.5, p.Speed())
}

func TestTrackerRejectsInvalidSamples(t *testing.T) {
	tr := newTestTracker()
	_, ok := tr.OnRawSample(Sample{Lat: 95, Lng: 0, Timestamp: t0})
	assert.False(t, ok)
	_, ok = tr.OnRawSample(Sample{Lat: 0, Lng: 0, AccuracyMeters: -1, Timestamp: t0})
	assert.False(t, ok)
	_, has := tr.Last()
	assert.False(t, has)
}

func TestTrackerStampsMissingTimestamp(t *testing.T) {
	clk := clock.NewMock(t0)
	tr := NewTracker(Config{}, clk, quietLogger())
	p, ok := tr.OnRawSample(Sample{Lat: 1, Lng: 1})
	require.True(t, ok)
	assert.Equal(t, t0, p.CapturedAt)
}

func TestTrackerOnAcceptCallback(t *testing.T) {
	tr := newTestTracker()
	var recorded []Position
	tr.OnAccept(func(p Position) { recorded = append(recorded, p) })

	tr.OnRawSample(sampleAt(geo.Point{Lat: 0, Lng: 0}, t0))
	tr.OnRawSample(sampleAt(geo.Point{Lat: 0, Lng: 0.00001}, t0.Add(time.Second)))
	tr.OnRawSample(sampleAt(geo.Point{Lat: 0, Lng: 0.001}, t0.Add(2*time.Second)))

	assert.Len(t, recorded, 2)
}

func TestTrackerFail(t *testing.T) {
	tr := newTestTracker()
	calls := 0
	tr.OnUnavailable(func(err error) {
		calls++
		assert.ErrorIs(t, err, ErrSensorUnavailable)
	})

	tr.Fail(errors.New("permission denied"))
	tr.Fail(errors.New("second failure ignored"))

	assert.Equal(t, 1, calls)
	require.ErrorIs(t, tr.Err(), ErrSensorUnavailable)
	assert.Contains(t, tr.Err().Error(), "permission denied")

	_, ok := tr.OnRawSample(sampleAt(geo.Point{Lat: 1, Lng: 1}, t0))
	assert.False(t, ok)
}
