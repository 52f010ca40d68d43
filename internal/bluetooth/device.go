package bluetooth

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"sea-radar.klederson.com/internal/config"
)

// minRange keeps signal estimates off the scope centre.
const minRange = 0.1

// IDToAngle gives a beacon that carries no position a stable bearing on the
// scope, in radians [0, 2π).
func IDToAngle(id string) float64 {
	sum := sha256.Sum256([]byte(id))
	return float64(binary.BigEndian.Uint32(sum[:4])) / math.MaxUint32 * 2 * math.Pi
}

// SignalRange estimates the range in meters of a beacon heard at rssi dBm,
// using the log-distance path loss model calibrated by MeasuredPower and
// PathLossExp.
func SignalRange(rssi int16) float64 {
	if rssi >= 0 {
		return minRange
	}
	d := math.Pow(10, (config.MeasuredPower-float64(rssi))/(10*config.PathLossExp))
	return math.Max(d, minRange)
}
