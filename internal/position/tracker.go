package position

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/clock"
	"sea-radar.klederson.com/internal/geo"
)

const (
	// DefaultMinUpdateInterval is the minimum spacing between accepted samples.
	DefaultMinUpdateInterval = 1000 * time.Millisecond
	// DefaultMinMovementMeters is the GPS noise floor. Samples this close to
	// the last accepted fix are dropped.
	DefaultMinMovementMeters = 2.0
)

// Config holds the tracker gates.
type Config struct {
	MinUpdateInterval time.Duration
	MinMovementMeters float64
}

// Tracker applies the minimum-interval and minimum-movement gates to raw
// samples. It is safe for concurrent use.
type Tracker struct {
	cfg   Config
	clock clock.Clock
	log   logrus.FieldLogger

	mu            sync.Mutex
	last          Position
	hasLast       bool
	err           error
	onAccept      func(Position)
	onUnavailable func(error)
}

// NewTracker creates a tracker. Zero config fields fall back to the defaults.
func NewTracker(cfg Config, clk clock.Clock, log logrus.FieldLogger) *Tracker {
	if cfg.MinUpdateInterval <= 0 {
		cfg.MinUpdateInterval = DefaultMinUpdateInterval
	}
	if cfg.MinMovementMeters <= 0 {
		cfg.MinMovementMeters = DefaultMinMovementMeters
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tracker{
		cfg:   cfg,
		clock: clk,
		log:   log.WithField("component", "position"),
	}
}

// OnAccept registers a callback invoked with every accepted Position, after
// the tracker's own state is updated. Track recording hangs off this.
func (t *Tracker) OnAccept(f func(Position)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAccept = f
}

// OnUnavailable registers a callback invoked once when the sensor fails.
func (t *Tracker) OnUnavailable(f func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUnavailable = f
}

// OnRawSample filters a raw sample. It returns the new Position and true when
// the sample is accepted, or false when it is invalid, too soon, too close to
// the last accepted fix, or the sensor has been marked unavailable.
func (t *Tracker) OnRawSample(s Sample) (Position, bool) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return Position{}, false
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = t.clock.Now()
	}

	p, ok := normalize(s)
	if !ok {
		t.mu.Unlock()
		t.log.WithFields(logrus.Fields{"lat": s.Lat, "lng": s.Lng, "accuracy": s.AccuracyMeters}).
			Warn("dropping invalid position sample")
		return Position{}, false
	}

	if t.hasLast {
		if p.CapturedAt.Sub(t.last.CapturedAt) < t.cfg.MinUpdateInterval {
			t.mu.Unlock()
			return Position{}, false
		}
		if geo.DistanceMeters(t.last.Point(), p.Point()) <= t.cfg.MinMovementMeters {
			t.mu.Unlock()
			return Position{}, false
		}
	}

	t.last = p
	t.hasLast = true
	cb := t.onAccept
	t.mu.Unlock()

	if cb != nil {
		cb(p)
	}
	return p, true
}

// Last returns the most recently accepted position.
func (t *Tracker) Last() (Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Fail marks the sensor unavailable. Subsequent samples are ignored. Only the
// first failure is kept and reported.
func (t *Tracker) Fail(cause error) {
	t.mu.Lock()
	if t.err != nil {
		t.mu.Unlock()
		return
	}
	if cause == nil {
		t.err = ErrSensorUnavailable
	} else {
		t.err = fmt.Errorf("%w: %v", ErrSensorUnavailable, cause)
	}
	err := t.err
	cb := t.onUnavailable
	t.mu.Unlock()

	t.log.WithError(err).Warn("position sensor unavailable, no further fixes will be emitted")
	if cb != nil {
		cb(err)
	}
}

// Err returns the sensor failure, if any. It wraps ErrSensorUnavailable.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
