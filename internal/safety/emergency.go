package safety

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sea-radar.klederson.com/internal/alarm"
)

// Distress record values.
const (
	DistressTypeSOS        = "sos"
	DistressStatusActive   = "active"
	DistressStatusResolved = "resolved"
)

// DistressRecord is persisted once per emergency activation.
type DistressRecord struct {
	ID         string
	UserID     string
	Lat        float64
	Lng        float64
	Located    bool
	Type       string
	Status     string
	Source     Source
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// DistressRecorder persists distress records.
type DistressRecorder interface {
	RecordDistress(ctx context.Context, rec DistressRecord) error
	ResolveDistress(ctx context.Context, id string, at time.Time) error
}

// ToggleEmergency raises a manual emergency. An active emergency is only
// cleared through DismissEmergency, so toggling it again is rejected.
func (e *Engine) ToggleEmergency() error {
	return e.do(func(fx *effects) error {
		if e.emergency.Active {
			return ErrDismissRequired
		}
		e.activateLocked(SourceManual, fx)
		return nil
	})
}

// ActivateEmergency raises an emergency. It is a no-op if one is active.
func (e *Engine) ActivateEmergency(source Source) error {
	return e.do(func(fx *effects) error {
		e.activateLocked(source, fx)
		return nil
	})
}

// DismissEmergency clears the emergency and any pending collision countdown.
func (e *Engine) DismissEmergency() error {
	return e.do(func(fx *effects) error {
		if !e.emergency.Active && !e.collision.Counting {
			return ErrNothingToDismiss
		}
		if e.collision.Counting {
			e.stopCountdown()
			e.collision = CollisionState{}
		}
		if e.emergency.Active {
			id := e.emergency.RecordID
			e.stopEmergencyTimers()
			e.emergency = EmergencyState{}
			fx.resolve = id
			self := e.selfLocked()
			fx.assert = &self
			e.log.Info("emergency dismissed")
		}
		fx.changed = true
		return nil
	})
}

func (e *Engine) activateLocked(source Source, fx *effects) bool {
	if e.emergency.Active {
		return false
	}
	if e.collision.Counting {
		e.stopCountdown()
		e.collision = CollisionState{}
	}

	now := e.clock.Now()
	rec := DistressRecord{
		ID:        uuid.NewString(),
		UserID:    e.opts.UserID,
		Type:      DistressTypeSOS,
		Status:    DistressStatusActive,
		Source:    source,
		CreatedAt: now,
	}
	if e.hasPos {
		rec.Lat, rec.Lng = e.pos.Lat, e.pos.Lng
		rec.Located = true
	}
	e.emergency = EmergencyState{
		Active:   true,
		Since:    now,
		Source:   source,
		RecordID: rec.ID,
	}
	e.emergencyGen++
	e.log.WithField("source", source).Warn("emergency active")

	fx.record = &rec
	self := e.selfLocked()
	fx.assert = &self
	fx.changed = true
	e.startCadenceLocked(fx)
	e.scheduleRebroadcast()
	return true
}

func (e *Engine) scheduleRebroadcast() {
	stop(&e.rebroadcast)
	gen := e.emergencyGen
	e.rebroadcast = e.clock.AfterFunc(e.opts.SOSRebroadcastInterval, func() {
		e.rebroadcastTick(gen)
	})
}

func (e *Engine) rebroadcastTick(gen uint64) {
	_ = e.do(func(fx *effects) error {
		if gen != e.emergencyGen || !e.emergency.Active {
			return nil
		}
		self := e.selfLocked()
		fx.assert = &self
		e.startCadenceLocked(fx)
		e.scheduleRebroadcast()
		return nil
	})
}

// startCadenceLocked plays the first SOS step now and schedules the rest,
// unless a cadence is already playing.
func (e *Engine) startCadenceLocked(fx *effects) {
	if e.cadencePlaying {
		return
	}
	e.cadencePlaying = true
	e.cadenceStepLocked(e.emergencyGen, 0, fx)
}

func (e *Engine) cadenceStep(gen uint64, i int) {
	_ = e.do(func(fx *effects) error {
		if gen != e.emergencyGen || !e.emergency.Active {
			return nil
		}
		e.cadenceStepLocked(gen, i, fx)
		return nil
	})
}

func (e *Engine) cadenceStepLocked(gen uint64, i int, fx *effects) {
	steps := alarm.SOSCadence()
	if i >= len(steps) {
		e.cadencePlaying = false
		e.cadenceTimer = nil
		return
	}
	step := steps[i]
	fx.pulses = append(fx.pulses, step.Pulse)
	fx.pulseGen = gen
	e.cadenceTimer = e.clock.AfterFunc(step.Wait, func() {
		e.cadenceStep(gen, i+1)
	})
}

func (e *Engine) stopEmergencyTimers() {
	e.emergencyGen++
	stop(&e.rebroadcast)
	stop(&e.cadenceTimer)
	e.cadencePlaying = false
}

type noRecords struct{}

func (noRecords) RecordDistress(context.Context, DistressRecord) error { return nil }

func (noRecords) ResolveDistress(context.Context, string, time.Time) error { return nil }
