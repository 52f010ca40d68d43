package bluetooth

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"sea-radar.klederson.com/internal/presence"
)

var (
	enableOnce sync.Once
	enableErr  error
)

// EnableAdapter powers up the default adapter once for both the scanner and
// the advertiser.
func EnableAdapter() (*bluetooth.Adapter, error) {
	enableOnce.Do(func() {
		if err := bluetooth.DefaultAdapter.Enable(); err != nil {
			enableErr = fmt.Errorf("failed to enable BLE adapter: %w (try running with sudo or setcap cap_net_admin+ep)", err)
		}
	})
	return bluetooth.DefaultAdapter, enableErr
}

// Scanner listens for sea-radar beacons and feeds them to a presence sink.
// Beacons never say goodbye, so sightings older than the timeout are removed
// by Evict.
type Scanner struct {
	adapter *bluetooth.Adapter
	sink    presence.Sink
	self    BeaconID
	log     logrus.FieldLogger
	running atomic.Bool

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewScanner creates a scanner. Beacons carrying self are ignored.
func NewScanner(adapter *bluetooth.Adapter, sink presence.Sink, self BeaconID, log logrus.FieldLogger) *Scanner {
	return &Scanner{
		adapter: adapter,
		sink:    sink,
		self:    self,
		log:     log.WithField("transport", Source),
		seen:    make(map[string]time.Time),
	}
}

// Start begins BLE scanning in a goroutine.
func (s *Scanner) Start() error {
	if s.adapter == nil {
		return fmt.Errorf("no BLE adapter")
	}
	s.running.Store(true)
	go func() {
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !s.running.Load() {
				return
			}
			for _, mfr := range result.ManufacturerData() {
				if mfr.CompanyID == CompanyID {
					s.Observe(mfr.Data, result.RSSI, time.Now())
				}
			}
		})
		if err != nil {
			s.log.WithError(err).Error("BLE scan stopped")
		}
	}()
	return nil
}

// Observe handles one advertisement payload. It reports whether the payload
// was a beacon from another vessel.
func (s *Scanner) Observe(data []byte, rssi int16, now time.Time) bool {
	id, peer, err := DecodeBeacon(data, now)
	if err != nil {
		s.log.WithError(err).Debug("Dropping advertisement")
		return false
	}
	if id == s.self {
		return false
	}
	peer.RSSI = rssi

	s.mu.Lock()
	s.seen[peer.ID] = now
	s.mu.Unlock()

	s.sink.Apply(presence.Event{Kind: presence.EventUpsert, Peer: peer})
	return true
}

// Evict removes beacons not seen within timeout and returns how many were
// dropped.
func (s *Scanner) Evict(timeout time.Duration, now time.Time) int {
	cutoff := now.Add(-timeout)

	s.mu.Lock()
	var gone []string
	for id, at := range s.seen {
		if at.Before(cutoff) {
			gone = append(gone, id)
			delete(s.seen, id)
		}
	}
	s.mu.Unlock()

	for _, id := range gone {
		s.sink.Apply(presence.Event{Kind: presence.EventRemove, ID: id})
	}
	return len(gone)
}

// Stop halts scanning.
func (s *Scanner) Stop() {
	s.running.Store(false)
	if s.adapter != nil {
		_ = s.adapter.StopScan()
	}
}
