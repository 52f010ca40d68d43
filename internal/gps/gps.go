// Package gps feeds raw position samples from gpsd, an NMEA 0183 serial
// device or a simulator into a Sink.
package gps

import (
	"context"

	"sea-radar.klederson.com/internal/position"
)

const knotsToMetersPerSec = 0.514444

// Sink consumes raw fixes and fatal sensor errors. safety.Engine implements
// it.
type Sink interface {
	OnRawPosition(position.Sample) (position.Position, bool)
	OnSensorError(error)
}

// Source produces samples until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}
