package alarm

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Terminal rings the terminal bell. It has no haptic output.
type Terminal struct {
	Out io.Writer
}

// Acquire implements Backend.
func (t Terminal) Acquire() (Player, error) {
	out := t.Out
	if out == nil {
		out = os.Stderr
	}
	return &bell{out: out}, nil
}

type bell struct {
	mu  sync.Mutex
	out io.Writer
}

func (b *bell) Play(Tone) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := fmt.Fprint(b.out, "\a"); err != nil {
		return fmt.Errorf("ring bell: %w", err)
	}
	return nil
}

func (b *bell) Vibrate([]time.Duration) error { return nil }

func (b *bell) Close() error { return nil }

// Nop discards all output. Used in headless runs.
type Nop struct{}

// Acquire implements Backend.
func (Nop) Acquire() (Player, error) { return nopPlayer{}, nil }

type nopPlayer struct{}

func (nopPlayer) Play(Tone) error { return nil }

func (nopPlayer) Vibrate([]time.Duration) error { return nil }

func (nopPlayer) Close() error { return nil }

// Hooked wraps a backend and reports every tone to fn, e.g. to flash the
// console.
type Hooked struct {
	Backend Backend
	OnTone  func(Tone)
}

// Acquire implements Backend.
func (h Hooked) Acquire() (Player, error) {
	p, err := h.Backend.Acquire()
	if err != nil {
		return nil, err
	}
	return hookedPlayer{Player: p, onTone: h.OnTone}, nil
}

type hookedPlayer struct {
	Player
	onTone func(Tone)
}

func (p hookedPlayer) Play(t Tone) error {
	if p.onTone != nil {
		p.onTone(t)
	}
	return p.Player.Play(t)
}
