package alarm

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/clock"
)

// DefaultRetryBackoff suppresses audio acquisition retries after a failure.
const DefaultRetryBackoff = 2 * time.Second

// ErrNoAudio is returned by backends with no output device.
var ErrNoAudio = errors.New("no audio device")

// Backend acquires the audio/haptic output.
type Backend interface {
	Acquire() (Player, error)
}

// Player is an acquired output device.
type Player interface {
	Play(Tone) error
	Vibrate(pattern []time.Duration) error
	Close() error
}

// Signaler serialises alarm playback onto a single lazily acquired Player.
// Output failures are logged and swallowed, never returned to callers.
type Signaler struct {
	backend Backend
	clock   clock.Clock
	log     logrus.FieldLogger
	backoff time.Duration

	mu            sync.Mutex
	player        Player
	failedAt      time.Time
	failed        bool
	sounding      Kind
	soundingUntil time.Time
	closed        bool
	played        int
}

// NewSignaler creates a signaler on backend. A zero backoff uses
// DefaultRetryBackoff.
func NewSignaler(backend Backend, backoff time.Duration, clk clock.Clock, log logrus.FieldLogger) *Signaler {
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Signaler{
		backend: backend,
		clock:   clk,
		log:     log.WithField("component", "alarm"),
		backoff: backoff,
	}
}

// Trigger plays the profile for kind. It is skipped while a higher priority
// tone is still sounding.
func (s *Signaler) Trigger(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.closed || s.preempted(kind, now) {
		return
	}
	p, ok := s.acquire(now)
	if !ok {
		return
	}

	prof := ProfileFor(kind)
	if err := p.Play(prof.Tone); err != nil {
		s.release(err, kind)
		return
	}
	if err := p.Vibrate(prof.Haptic); err != nil {
		s.log.WithError(err).WithField("kind", kind).Debug("haptic failed")
	}
	s.sounding = kind
	s.soundingUntil = now.Add(prof.Tone.Duration)
	s.played++
}

// Pulse plays one SOS cadence step. Pulses carry emergency priority.
func (s *Signaler) Pulse(pulse Pulse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.closed {
		return
	}
	p, ok := s.acquire(now)
	if !ok {
		return
	}
	if err := p.Play(pulse.Tone); err != nil {
		s.release(err, Emergency)
		return
	}
	if pulse.Haptic > 0 {
		if err := p.Vibrate([]time.Duration{pulse.Haptic}); err != nil {
			s.log.WithError(err).Debug("haptic failed")
		}
	}
	s.sounding = Emergency
	s.soundingUntil = now.Add(pulse.Tone.Duration)
	s.played++
}

// Played returns how many tones were successfully started.
func (s *Signaler) Played() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

// Close releases the audio resource. Further triggers are ignored.
func (s *Signaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

func (s *Signaler) preempted(kind Kind, now time.Time) bool {
	return now.Before(s.soundingUntil) && s.sounding.outranks(kind)
}

// acquire returns the held player, opening one if needed. Caller holds mu.
func (s *Signaler) acquire(now time.Time) (Player, bool) {
	if s.player != nil {
		return s.player, true
	}
	if s.failed && now.Sub(s.failedAt) < s.backoff {
		return nil, false
	}
	p, err := s.backend.Acquire()
	if err != nil {
		s.failed = true
		s.failedAt = now
		s.log.WithError(err).Warn("audio unavailable")
		return nil, false
	}
	s.failed = false
	s.player = p
	return p, true
}

// release drops a player that failed mid-playback. Caller holds mu.
func (s *Signaler) release(err error, kind Kind) {
	s.log.WithError(err).WithField("kind", kind).Warn("alarm playback failed")
	if cerr := s.player.Close(); cerr != nil {
		s.log.WithError(cerr).Debug("closing audio player")
	}
	s.player = nil
}
