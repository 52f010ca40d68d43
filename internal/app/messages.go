package app

import "time"

// TickMsg triggers a frame update for animation.
type TickMsg time.Time

// EvictMsg triggers removal of beacons that went quiet.
type EvictMsg time.Time
