package safety

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"sea-radar.klederson.com/internal/alarm"
	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/presence"
)

// MotionSample is one accelerometer reading in m/s².
type MotionSample struct {
	Ax, Ay, Az float64
}

// Magnitude is the Euclidean norm of the acceleration vector.
func (m MotionSample) Magnitude() float64 {
	return floats.Norm([]float64{m.Ax, m.Ay, m.Az}, 2)
}

// OnMotion checks one accelerometer sample for an impact. It returns true
// when the sample started a collision countdown.
func (e *Engine) OnMotion(m MotionSample) bool {
	mag := m.Magnitude()
	if math.IsNaN(mag) || mag <= e.opts.ImpactThreshold {
		return false
	}
	started := false
	_ = e.do(func(fx *effects) error {
		if !e.canFlagLocked() {
			return nil
		}
		e.log.WithField("magnitude", mag).Warn("impact detected")
		e.startCountdownLocked(CollisionState{Cause: CauseImpact}, fx)
		started = true
		return nil
	})
	return started
}

// Scan runs one radar collision scan against the current peers. It returns
// true when the scan started a collision countdown.
func (e *Engine) Scan() bool {
	peers := e.peers.Snapshot()
	radar := e.conds.RadarEnabled() && !e.conds.Offline()

	started := false
	_ = e.do(func(fx *effects) error {
		started = e.scanLocked(peers, radar, fx)
		return nil
	})
	return started
}

// DismissCollisionCountdown cancels a running countdown without raising an
// emergency.
func (e *Engine) DismissCollisionCountdown() error {
	return e.do(func(fx *effects) error {
		if !e.collision.Counting {
			return ErrNoCountdown
		}
		e.stopCountdown()
		e.collision = CollisionState{}
		fx.changed = true
		e.log.Info("collision countdown dismissed")
		return nil
	})
}

func (e *Engine) canFlagLocked() bool {
	return !e.emergency.Active && !e.collision.Counting
}

func (e *Engine) scanLocked(peers []presence.Peer, radar bool, fx *effects) bool {
	if !radar || !e.hasPos || !e.canFlagLocked() {
		return false
	}
	own := e.pos.Point()
	for _, p := range peers {
		if !p.Usable() {
			continue
		}
		d := geo.DistanceMeters(own, p.Point())
		if d < e.opts.CollisionDistanceMeters && p.SpeedMetersPerSec > e.opts.CollisionPeerMinSpeed {
			e.log.WithField("peer", p.ID).WithField("distance", d).Warn("collision risk")
			e.startCountdownLocked(CollisionState{
				Cause:          CauseRadar,
				PeerID:         p.ID,
				DistanceMeters: d,
			}, fx)
			return true
		}
	}
	return false
}

func (e *Engine) scheduleScan() {
	stop(&e.scanTimer)
	e.scanGen++
	gen := e.scanGen
	e.scanTimer = e.clock.AfterFunc(e.opts.CollisionScanInterval, func() {
		e.scanTick(gen)
	})
}

func (e *Engine) scanTick(gen uint64) {
	peers := e.peers.Snapshot()
	radar := e.conds.RadarEnabled() && !e.conds.Offline()

	_ = e.do(func(fx *effects) error {
		if gen != e.scanGen {
			return nil
		}
		e.scanLocked(peers, radar, fx)
		e.scheduleScan()
		return nil
	})
}

func (e *Engine) startCountdownLocked(c CollisionState, fx *effects) {
	c.Counting = true
	c.CountdownSeconds = e.opts.CountdownSeconds
	e.collision = c
	fx.trigger(alarm.Collision)
	e.scheduleCountdownTick()
}

func (e *Engine) scheduleCountdownTick() {
	stop(&e.countdownTimer)
	e.countdownGen++
	gen := e.countdownGen
	e.countdownTimer = e.clock.AfterFunc(time.Second, func() {
		e.countdownTick(gen)
	})
}

func (e *Engine) countdownTick(gen uint64) {
	_ = e.do(func(fx *effects) error {
		if gen != e.countdownGen || !e.collision.Counting {
			return nil
		}
		e.collision.CountdownSeconds--
		fx.changed = true
		if e.collision.CountdownSeconds > 0 {
			e.scheduleCountdownTick()
			return nil
		}
		e.stopCountdown()
		e.collision = CollisionState{}
		e.log.Warn("collision countdown expired")
		e.activateLocked(SourceCountdown, fx)
		return nil
	})
}

func (e *Engine) stopCountdown() {
	e.countdownGen++
	stop(&e.countdownTimer)
}
