package safety

import (
	"time"

	"sea-radar.klederson.com/internal/position"
)

// AnchorPhase is the anchor watch lifecycle position.
type AnchorPhase int

const (
	AnchorInactive AnchorPhase = iota
	AnchorArmed
	AnchorTriggered
	AnchorAcknowledged
)

func (p AnchorPhase) String() string {
	switch p {
	case AnchorArmed:
		return "armed"
	case AnchorTriggered:
		return "triggered"
	case AnchorAcknowledged:
		return "acknowledged"
	default:
		return "inactive"
	}
}

// AnchorState is the anchor watch. Triggered implies Active and Acknowledged
// implies Triggered. The zero value is an inactive watch.
type AnchorState struct {
	Active       bool
	Lat          float64
	Lng          float64
	RadiusMeters float64
	Triggered    bool
	Acknowledged bool
}

// Phase derives the lifecycle phase from the flags.
func (a AnchorState) Phase() AnchorPhase {
	switch {
	case !a.Active:
		return AnchorInactive
	case a.Acknowledged:
		return AnchorAcknowledged
	case a.Triggered:
		return AnchorTriggered
	default:
		return AnchorArmed
	}
}

// Cause says what started a collision countdown.
type Cause int

const (
	CauseNone Cause = iota
	CauseRadar
	CauseImpact
)

func (c Cause) String() string {
	switch c {
	case CauseRadar:
		return "radar"
	case CauseImpact:
		return "impact"
	default:
		return "none"
	}
}

// CollisionState is the collision countdown. Not counting means none.
type CollisionState struct {
	Counting         bool
	CountdownSeconds int
	Cause            Cause
	PeerID           string  // radar cause only
	DistanceMeters   float64 // radar cause only
}

// Source says how an emergency was raised.
type Source string

const (
	SourceManual    Source = "manual"
	SourceCountdown Source = "countdown"
)

// EmergencyState is the SOS condition.
type EmergencyState struct {
	Active   bool
	Since    time.Time
	Source   Source
	RecordID string
}

// Snapshot is a consistent copy of all engine state.
type Snapshot struct {
	Anchor    AnchorState
	Collision CollisionState
	Emergency EmergencyState

	Position    position.Position
	HasPosition bool
	// SensorFailed is set once the position source reported an error.
	SensorFailed bool

	// DriftMeters is the distance from the anchor point, valid when the
	// anchor is down and a position is known.
	DriftMeters float64
	HasDrift    bool
}
