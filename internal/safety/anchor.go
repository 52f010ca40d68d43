package safety

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/alarm"
	"sea-radar.klederson.com/internal/geo"
)

// DropAnchor arms the anchor watch at point with the given swing radius.
func (e *Engine) DropAnchor(point geo.Point, radiusMeters float64) error {
	return e.do(func(fx *effects) error {
		return e.dropAnchorLocked(point, radiusMeters, fx)
	})
}

// DropAnchorHere arms the anchor watch at the current position.
func (e *Engine) DropAnchorHere(radiusMeters float64) error {
	return e.do(func(fx *effects) error {
		if !e.hasPos {
			return fmt.Errorf("drop anchor: %w", ErrNoPosition)
		}
		return e.dropAnchorLocked(e.pos.Point(), radiusMeters, fx)
	})
}

func (e *Engine) dropAnchorLocked(point geo.Point, radius float64, fx *effects) error {
	if !finite(radius) || radius <= 0 {
		return fmt.Errorf("drop anchor: %w: %v", ErrInvalidRadius, radius)
	}
	if !point.Valid() {
		return fmt.Errorf("drop anchor: %w", ErrInvalidPoint)
	}
	if e.anchor.Active {
		return fmt.Errorf("drop anchor: %w", ErrAnchorActive)
	}
	e.anchor = AnchorState{
		Active:       true,
		Lat:          point.Lat,
		Lng:          point.Lng,
		RadiusMeters: radius,
	}
	fx.changed = true
	e.log.WithField("radius", radius).Info("anchor down")
	return nil
}

// LiftAnchor clears the watch from any state.
func (e *Engine) LiftAnchor() error {
	return e.do(func(fx *effects) error {
		e.stopAnchorRepeat()
		if e.anchor.Active {
			e.log.Info("anchor up")
		}
		e.anchor = AnchorState{}
		fx.changed = true
		return nil
	})
}

// AcknowledgeAnchor silences a triggered anchor alarm. The anchor stays down.
func (e *Engine) AcknowledgeAnchor() error {
	return e.do(func(fx *effects) error {
		if e.anchor.Phase() != AnchorTriggered {
			return fmt.Errorf("acknowledge anchor: %w", ErrAnchorNotTriggered)
		}
		e.anchor.Acknowledged = true
		e.stopAnchorRepeat()
		fx.changed = true
		return nil
	})
}

// evaluateAnchor checks drift against the radius for a new position.
func (e *Engine) evaluateAnchor(fx *effects) {
	if !e.anchor.Active {
		return
	}
	drift := e.drift(e.pos.Point())

	switch {
	case !e.anchor.Triggered && drift > e.anchor.RadiusMeters:
		e.anchor.Triggered = true
		e.log.WithFields(logrus.Fields{
			"drift":  drift,
			"radius": e.anchor.RadiusMeters,
		}).Warn("anchor drag")
		fx.trigger(alarm.Anchor)
		e.scheduleAnchorRepeat()
	case e.anchor.Acknowledged && e.opts.AnchorAutoRearm && drift <= e.anchor.RadiusMeters:
		e.anchor.Triggered = false
		e.anchor.Acknowledged = false
		e.log.Info("anchor back inside radius, rearmed")
	}
}

func (e *Engine) scheduleAnchorRepeat() {
	stop(&e.anchorTimer)
	e.anchorGen++
	gen := e.anchorGen
	e.anchorTimer = e.clock.AfterFunc(e.opts.AnchorAlarmInterval, func() {
		e.anchorRepeat(gen)
	})
}

func (e *Engine) anchorRepeat(gen uint64) {
	_ = e.do(func(fx *effects) error {
		if gen != e.anchorGen || e.anchor.Phase() != AnchorTriggered {
			return nil
		}
		fx.alarms = append(fx.alarms, alarm.Anchor)
		e.scheduleAnchorRepeat()
		return nil
	})
}

func (e *Engine) stopAnchorRepeat() {
	e.anchorGen++
	stop(&e.anchorTimer)
}
