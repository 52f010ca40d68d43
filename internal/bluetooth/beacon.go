// Package bluetooth carries vessel presence over BLE advertisements so boats
// within radio range see each other without any network.
package bluetooth

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/presence"
)

const (
	// CompanyID tags sea-radar manufacturer data. 0xFFFF is the SIG id
	// reserved for internal use.
	CompanyID uint16 = 0xFFFF

	// Source is the presence source name for beacon sightings.
	Source = "ble"

	idPrefix  = "ble:"
	beaconLen = 21
	coordUnit = 1e7 // 1e-7 degree resolution
)

const (
	flagDistress byte = 1 << iota
	flagLocated
)

var ErrNotBeacon = errors.New("not a sea-radar beacon")

// BeaconID is the short identifier a vessel advertises over BLE.
type BeaconID [8]byte

// BeaconIDFor derives the beacon id for a vessel id.
func BeaconIDFor(vesselID string) BeaconID {
	h := sha256.Sum256([]byte(vesselID))
	var id BeaconID
	copy(id[:], h[:8])
	return id
}

// PeerID is the presence id under which the beacon is listed.
func (id BeaconID) PeerID() string {
	return idPrefix + hex.EncodeToString(id[:])
}

// EncodeBeacon packs a presence into 21 bytes of manufacturer data:
//
//	0..7   beacon id
//	8..11  latitude, int32 big endian, 1e-7 degrees
//	12..15 longitude, int32 big endian, 1e-7 degrees
//	16..17 heading, uint16, centidegrees
//	18..19 speed, uint16, cm/s
//	20     flags
func EncodeBeacon(id BeaconID, p presence.Peer) []byte {
	buf := make([]byte, beaconLen)
	copy(buf, id[:])

	var flags byte
	if p.Distress {
		flags |= flagDistress
	}
	if p.Located && p.Point().Valid() {
		flags |= flagLocated
		binary.BigEndian.PutUint32(buf[8:], uint32(int32(math.Round(p.Lat*coordUnit))))
		binary.BigEndian.PutUint32(buf[12:], uint32(int32(math.Round(p.Lng*coordUnit))))
	}

	heading := geo.NormalizeDegrees(p.HeadingDegrees)
	if math.IsNaN(heading) {
		heading = 0
	}
	binary.BigEndian.PutUint16(buf[16:], uint16(math.Round(heading*100))%36000)
	binary.BigEndian.PutUint16(buf[18:], speedUnits(p.SpeedMetersPerSec))
	buf[20] = flags
	return buf
}

func speedUnits(mps float64) uint16 {
	cm := math.Round(mps * 100)
	switch {
	case math.IsNaN(cm) || cm <= 0:
		return 0
	case cm >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(cm)
}

// DecodeBeacon unpacks manufacturer data produced by EncodeBeacon.
func DecodeBeacon(data []byte, seen time.Time) (BeaconID, presence.Peer, error) {
	var id BeaconID
	if len(data) != beaconLen {
		return id, presence.Peer{}, fmt.Errorf("%w: %d bytes", ErrNotBeacon, len(data))
	}
	copy(id[:], data[:8])
	flags := data[20]

	p := presence.Peer{
		ID:                id.PeerID(),
		HeadingDegrees:    float64(binary.BigEndian.Uint16(data[16:])) / 100,
		SpeedMetersPerSec: float64(binary.BigEndian.Uint16(data[18:])) / 100,
		Distress:          flags&flagDistress != 0,
		UpdatedAt:         seen,
		Source:            Source,
	}
	if p.HeadingDegrees >= 360 {
		return id, presence.Peer{}, fmt.Errorf("%w: heading %v", ErrNotBeacon, p.HeadingDegrees)
	}
	if flags&flagLocated != 0 {
		p.Lat = float64(int32(binary.BigEndian.Uint32(data[8:]))) / coordUnit
		p.Lng = float64(int32(binary.BigEndian.Uint32(data[12:]))) / coordUnit
		p.Located = p.Point().Valid()
	}
	return id, p, nil
}
