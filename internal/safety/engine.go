// Package safety derives the anchor drift, collision risk and distress
// conditions from position, peer presence and motion input.
//
// All state lives in one Engine guarded by a single mutex. Commands, sensor
// callbacks and timer callbacks take that lock, mutate state and collect the
// resulting side effects; the effects (alarms, presence broadcasts, distress
// persistence, change notifications) run after the lock is released, so
// collaborators are free to call back into the engine.
package safety

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/alarm"
	"sea-radar.klederson.com/internal/clock"
	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/position"
	"sea-radar.klederson.com/internal/presence"
)

// Defaults for Options.
const (
	DefaultAnchorAlarmInterval     = 3000 * time.Millisecond
	DefaultCollisionScanInterval   = 3000 * time.Millisecond
	DefaultCollisionDistanceMeters = 50.0
	DefaultCollisionPeerMinSpeed   = 0.5 // m/s
	DefaultImpactThreshold         = 25.0
	DefaultCountdownSeconds        = 30
	DefaultSOSRebroadcastInterval  = 5000 * time.Millisecond

	persistTimeout = 5 * time.Second
)

// Conditions are the user toggles consulted by the collision scan.
type Conditions interface {
	RadarEnabled() bool
	Offline() bool
}

// PeerSource provides the current peer vessels.
type PeerSource interface {
	Snapshot() []presence.Peer
}

// Alarm is the audible/haptic sink.
type Alarm interface {
	Trigger(alarm.Kind)
	Pulse(alarm.Pulse)
}

// Broadcaster publishes the local vessel's presence.
type Broadcaster interface {
	Offer(self presence.Peer) bool
	Assert(self presence.Peer) bool
}

// Deps are the engine's collaborators. Nil fields get inert defaults.
type Deps struct {
	Tracker    *position.Tracker
	Peers      PeerSource
	Conditions Conditions
	Alarm      Alarm
	Presence   Broadcaster
	Distress   DistressRecorder
	Clock      clock.Clock
	Log        logrus.FieldLogger
}

// Options are the thresholds and timings.
type Options struct {
	AnchorAlarmInterval     time.Duration
	CollisionScanInterval   time.Duration
	CollisionDistanceMeters float64
	CollisionPeerMinSpeed   float64
	ImpactThreshold         float64 // m/s²
	CountdownSeconds        int
	SOSRebroadcastInterval  time.Duration

	// AnchorAutoRearm returns an acknowledged anchor watch to armed once the
	// vessel is back inside the radius.
	AnchorAutoRearm bool
	// Equirectangular measures anchor drift with the flat-earth
	// approximation instead of haversine.
	Equirectangular bool

	// UserID is stored on distress records.
	UserID string

	// OnChange is called with a fresh snapshot after every state change.
	OnChange func(Snapshot)
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		AnchorAlarmInterval:     DefaultAnchorAlarmInterval,
		CollisionScanInterval:   DefaultCollisionScanInterval,
		CollisionDistanceMeters: DefaultCollisionDistanceMeters,
		CollisionPeerMinSpeed:   DefaultCollisionPeerMinSpeed,
		ImpactThreshold:         DefaultImpactThreshold,
		CountdownSeconds:        DefaultCountdownSeconds,
		SOSRebroadcastInterval:  DefaultSOSRebroadcastInterval,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AnchorAlarmInterval <= 0 {
		o.AnchorAlarmInterval = d.AnchorAlarmInterval
	}
	if o.CollisionScanInterval <= 0 {
		o.CollisionScanInterval = d.CollisionScanInterval
	}
	if o.CollisionDistanceMeters <= 0 {
		o.CollisionDistanceMeters = d.CollisionDistanceMeters
	}
	if o.CollisionPeerMinSpeed <= 0 {
		o.CollisionPeerMinSpeed = d.CollisionPeerMinSpeed
	}
	if o.ImpactThreshold <= 0 {
		o.ImpactThreshold = d.ImpactThreshold
	}
	if o.CountdownSeconds <= 0 {
		o.CountdownSeconds = d.CountdownSeconds
	}
	if o.SOSRebroadcastInterval <= 0 {
		o.SOSRebroadcastInterval = d.SOSRebroadcastInterval
	}
	return o
}

// Engine owns the anchor, collision and emergency state.
type Engine struct {
	opts    Options
	tracker *position.Tracker
	peers   PeerSource
	conds   Conditions
	alarm   Alarm
	bcast   Broadcaster
	records DistressRecorder
	clock   clock.Clock
	log     logrus.FieldLogger

	// in orders sensor input so positions apply in arrival order.
	in sync.Mutex

	mu      sync.Mutex
	closed  bool
	started bool

	pos          position.Position
	hasPos       bool
	sensorFailed bool

	anchor      AnchorState
	anchorGen   uint64
	anchorTimer clock.Timer

	collision      CollisionState
	countdownGen   uint64
	countdownTimer clock.Timer

	emergency      EmergencyState
	emergencyGen   uint64
	rebroadcast    clock.Timer
	cadenceTimer   clock.Timer
	cadencePlaying bool

	scanGen   uint64
	scanTimer clock.Timer

	// pending holds committed effects in commit order. Whoever finds
	// draining unset runs the queue until it is empty.
	pending  []pendingEffects
	draining bool
}

type pendingEffects struct {
	fx   effects
	snap Snapshot
}

// New creates an engine. Call Start to begin periodic collision scans.
func New(deps Deps, opts Options) *Engine {
	e := &Engine{
		opts:    opts.withDefaults(),
		tracker: deps.Tracker,
		peers:   deps.Peers,
		conds:   deps.Conditions,
		alarm:   deps.Alarm,
		bcast:   deps.Presence,
		records: deps.Distress,
		clock:   deps.Clock,
		log:     deps.Log,
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	e.log = e.log.WithField("component", "safety")
	if e.tracker == nil {
		e.tracker = position.NewTracker(position.Config{}, e.clock, e.log)
	}
	if e.peers == nil {
		e.peers = noPeers{}
	}
	if e.conds == nil {
		e.conds = alwaysOn{}
	}
	if e.alarm == nil {
		e.alarm = silent{}
	}
	if e.bcast == nil {
		e.bcast = noBroadcast{}
	}
	if e.records == nil {
		e.records = noRecords{}
	}
	return e
}

// Start begins the periodic collision scan.
func (e *Engine) Start() error {
	return e.do(func(fx *effects) error {
		if e.started {
			return nil
		}
		e.started = true
		e.scheduleScan()
		return nil
	})
}

// Close cancels every timer. Commands after Close return ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.stopAnchorRepeat()
	e.stopCountdown()
	e.stopEmergencyTimers()
	e.scanGen++
	stop(&e.scanTimer)
	return nil
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// OnRawPosition feeds one raw sample through the tracker and, if accepted,
// applies the new position to the watchers.
func (e *Engine) OnRawPosition(s position.Sample) (position.Position, bool) {
	e.in.Lock()
	defer e.in.Unlock()

	pos, ok := e.tracker.OnRawSample(s)
	if !ok {
		return position.Position{}, false
	}
	err := e.do(func(fx *effects) error {
		e.applyPosition(pos, fx)
		return nil
	})
	return pos, err == nil
}

// OnSensorError stops position updates. The watchers keep their state but
// receive nothing further.
func (e *Engine) OnSensorError(err error) {
	e.tracker.Fail(err)
	_ = e.do(func(fx *effects) error {
		if !e.sensorFailed {
			e.sensorFailed = true
			e.log.WithError(err).Warn("position sensor unavailable")
			fx.changed = true
		}
		return nil
	})
}

func (e *Engine) applyPosition(pos position.Position, fx *effects) {
	e.pos = pos
	e.hasPos = true
	fx.changed = true
	e.evaluateAnchor(fx)
	self := e.selfLocked()
	fx.offer = &self
}

func (e *Engine) selfLocked() presence.Peer {
	p := presence.Peer{
		Distress:  e.emergency.Active,
		UpdatedAt: e.clock.Now(),
	}
	if e.hasPos {
		p.Lat, p.Lng = e.pos.Lat, e.pos.Lng
		p.Located = true
		p.SpeedMetersPerSec = e.pos.Speed()
		if h, ok := e.pos.Heading(); ok {
			p.HeadingDegrees = h
		}
	}
	return p
}

func (e *Engine) snapshotLocked() Snapshot {
	s := Snapshot{
		Anchor:       e.anchor,
		Collision:    e.collision,
		Emergency:    e.emergency,
		Position:     e.pos,
		HasPosition:  e.hasPos,
		SensorFailed: e.sensorFailed,
	}
	if e.anchor.Active && e.hasPos {
		s.DriftMeters = e.drift(e.pos.Point())
		s.HasDrift = true
	}
	return s
}

func (e *Engine) drift(p geo.Point) float64 {
	a := geo.Point{Lat: e.anchor.Lat, Lng: e.anchor.Lng}
	if e.opts.Equirectangular {
		return geo.EquirectangularMeters(a, p)
	}
	return geo.DistanceMeters(a, p)
}

// effects are collected under the lock and run after it is released.
type effects struct {
	record   *DistressRecord
	resolve  string
	assert   *presence.Peer
	offer    *presence.Peer
	alarms   []alarm.Kind
	pulses   []alarm.Pulse
	pulseGen uint64 // emergency generation the pulses belong to
	changed  bool
}

func (fx *effects) trigger(k alarm.Kind) {
	fx.alarms = append(fx.alarms, k)
	fx.changed = true
}

// do runs f under the engine lock and queues the collected effects. Effects
// always run in the order their state changes were committed, outside the
// lock, so collaborators may call back into the engine. A call made while
// another goroutine is draining returns once its effects are queued.
func (e *Engine) do(f func(fx *effects) error) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	var fx effects
	err := f(&fx)
	var snap Snapshot
	if fx.changed {
		snap = e.snapshotLocked()
	}
	e.pending = append(e.pending, pendingEffects{fx: fx, snap: snap})
	if e.draining {
		e.mu.Unlock()
		return err
	}
	e.draining = true
	for len(e.pending) > 0 {
		next := e.pending[0]
		e.pending[0] = pendingEffects{}
		e.pending = e.pending[1:]
		e.mu.Unlock()
		e.run(next.fx, next.snap)
		e.mu.Lock()
	}
	e.pending = nil
	e.draining = false
	e.mu.Unlock()
	return err
}

// cadenceLive reports whether pulses of generation gen may still play.
func (e *Engine) cadenceLive(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.emergency.Active && gen == e.emergencyGen
}

func (e *Engine) run(fx effects, snap Snapshot) {
	if fx.record != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := e.records.RecordDistress(ctx, *fx.record); err != nil {
			e.log.WithError(err).WithField("record", fx.record.ID).Error("persisting distress record")
		}
		cancel()
	}
	if fx.resolve != "" {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := e.records.ResolveDistress(ctx, fx.resolve, e.clock.Now()); err != nil {
			e.log.WithError(err).WithField("record", fx.resolve).Warn("resolving distress record")
		}
		cancel()
	}
	if fx.assert != nil {
		e.bcast.Assert(*fx.assert)
	} else if fx.offer != nil {
		e.bcast.Offer(*fx.offer)
	}
	for _, k := range fx.alarms {
		e.alarm.Trigger(k)
	}
	for _, p := range fx.pulses {
		if !e.cadenceLive(fx.pulseGen) {
			break
		}
		e.alarm.Pulse(p)
	}
	if fx.changed && e.opts.OnChange != nil {
		e.opts.OnChange(snap)
	}
}

func stop(t *clock.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

type noPeers struct{}

func (noPeers) Snapshot() []presence.Peer { return nil }

type alwaysOn struct{}

func (alwaysOn) RadarEnabled() bool { return true }

func (alwaysOn) Offline() bool { return false }

type silent struct{}

func (silent) Trigger(alarm.Kind) {}

func (silent) Pulse(alarm.Pulse) {}

type noBroadcast struct{}

func (noBroadcast) Offer(presence.Peer) bool { return false }

func (noBroadcast) Assert(presence.Peer) bool { return false }
