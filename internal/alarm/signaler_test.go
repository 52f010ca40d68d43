package alarm

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sea-radar.klederson.com/internal/clock"
)

type fakeBackend struct {
	mu       sync.Mutex
	acquires int
	failures int // remaining acquisitions that fail
	playErr  error
	tones    []Tone
	vibes    int
	closes   int
}

func (b *fakeBackend) Acquire() (Player, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.acquires++
	if b.failures > 0 {
		b.failures--
		return nil, ErrNoAudio
	}
	return &fakePlayer{b: b}, nil
}

func (b *fakeBackend) stats() (acquires, tones, closes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acquires, len(b.tones), b.closes
}

type fakePlayer struct{ b *fakeBackend }

func (p *fakePlayer) Play(t Tone) error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if p.b.playErr != nil {
		return p.b.playErr
	}
	p.b.tones = append(p.b.tones, t)
	return nil
}

func (p *fakePlayer) Vibrate([]time.Duration) error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.vibes++
	return nil
}

func (p *fakePlayer) Close() error {
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	p.b.closes++
	return nil
}

func newTestSignaler(b Backend) (*Signaler, *clock.Mock, *test.Hook) {
	clk := clock.NewMock(time.Unix(0, 0))
	logger, hook := test.NewNullLogger()
	return NewSignaler(b, time.Second, clk, logger), clk, hook
}

func TestSignalerAcquiresLazilyOnce(t *testing.T) {
	b := &fakeBackend{}
	s, clk, _ := newTestSignaler(b)

	acquires, _, _ := b.stats()
	assert.Zero(t, acquires)

	s.Trigger(Anchor)
	clk.Advance(5 * time.Second)
	s.Trigger(Anchor)

	acquires, tones, _ := b.stats()
	assert.Equal(t, 1, acquires)
	assert.Equal(t, 2, tones)
	assert.Equal(t, 2, s.Played())
}

func TestSignalerSwallowsAcquireFailure(t *testing.T) {
	b := &fakeBackend{failures: 1}
	s, clk, hook := newTestSignaler(b)

	s.Trigger(Collision)
	s.Trigger(Collision)

	acquires, tones, _ := b.stats()
	assert.Equal(t, 1, acquires, "retry suppressed inside backoff window")
	assert.Zero(t, tones)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	clk.Advance(time.Second)
	s.Trigger(Collision)
	acquires, tones, _ = b.stats()
	assert.Equal(t, 2, acquires)
	assert.Equal(t, 1, tones)
}

func TestSignalerConcurrentTriggers(t *testing.T) {
	b := &fakeBackend{failures: 100}
	s, _, hook := newTestSignaler(b)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger(Anchor)
		}()
	}
	wg.Wait()

	acquires, _, _ := b.stats()
	assert.Equal(t, 1, acquires)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestSignalerConcurrentHoldsSinglePlayer(t *testing.T) {
	b := &fakeBackend{}
	s, _, _ := newTestSignaler(b)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Trigger(Emergency)
			} else {
				s.Pulse(Pulse{Tone: Tone{FrequencyHz: 880, Duration: ShortPulse}})
			}
		}(i)
	}
	wg.Wait()

	acquires, _, _ := b.stats()
	assert.Equal(t, 1, acquires)
}

func TestSignalerPriority(t *testing.T) {
	b := &fakeBackend{}
	s, clk, _ := newTestSignaler(b)

	s.Trigger(Emergency)
	s.Trigger(Anchor)
	s.Trigger(Weather)
	_, tones, _ := b.stats()
	assert.Equal(t, 1, tones, "lower priority skipped while emergency sounds")

	s.Trigger(Emergency)
	_, tones, _ = b.stats()
	assert.Equal(t, 2, tones, "same priority plays")

	clk.Advance(ProfileFor(Emergency).Tone.Duration)
	s.Trigger(Weather)
	_, tones, _ = b.stats()
	assert.Equal(t, 3, tones)

	s.Trigger(Collision)
	_, tones, _ = b.stats()
	assert.Equal(t, 4, tones, "higher priority interrupts")
}

func TestSignalerReleasesOnPlayFailure(t *testing.T) {
	b := &fakeBackend{playErr: errors.New("device gone")}
	s, _, hook := newTestSignaler(b)

	s.Trigger(Anchor)
	s.Trigger(Anchor)

	acquires, _, closes := b.stats()
	assert.Equal(t, 2, acquires)
	assert.Equal(t, 2, closes)
	assert.Zero(t, s.Played())
	assert.NotEmpty(t, hook.AllEntries())
}

func TestSignalerClose(t *testing.T) {
	b := &fakeBackend{}
	s, _, _ := newTestSignaler(b)

	s.Trigger(Anchor)
	require.NoError(t, s.Close())
	s.Trigger(Anchor)
	s.Pulse(Pulse{})

	_, tones, closes := b.stats()
	assert.Equal(t, 1, tones)
	assert.Equal(t, 1, closes)
}

func TestSOSCadence(t *testing.T) {
	steps := SOSCadence()
	require.Len(t, steps, 9)

	var pattern []time.Duration
	for _, st := range steps {
		pattern = append(pattern, st.Pulse.Tone.Duration)
		assert.Equal(t, st.Pulse.Tone.Duration, st.Pulse.Haptic)
	}
	s, l := ShortPulse, LongPulse
	assert.Equal(t, []time.Duration{s, s, s, l, l, l, s, s, s}, pattern)
	assert.Equal(t, 4200*time.Millisecond, CadenceDuration(steps))
}

func TestProfilesDistinct(t *testing.T) {
	seen := map[float64]Kind{}
	for _, k := range []Kind{Weather, Anchor, Collision, Emergency} {
		p := ProfileFor(k)
		assert.NotZero(t, p.Tone.Duration, k.String())
		assert.NotEmpty(t, p.Haptic, k.String())
		_, dup := seen[p.Tone.FrequencyHz]
		assert.False(t, dup, "duplicate frequency for %s", k)
		seen[p.Tone.FrequencyHz] = k
	}
}

func TestTerminalBell(t *testing.T) {
	var buf bytes.Buffer
	var heard []Tone
	s := NewSignaler(Hooked{Backend: Terminal{Out: &buf}, OnTone: func(t Tone) { heard = append(heard, t) }},
		0, clock.NewMock(time.Unix(0, 0)), nil)

	s.Trigger(Weather)
	assert.Equal(t, "\a", buf.String())
	assert.Len(t, heard, 1)
}
