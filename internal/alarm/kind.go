// Package alarm plays audible and haptic alarm patterns for the safety
// watchers. It owns the single audio resource of the process.
package alarm

import "time"

// Kind identifies an alarm source.
type Kind int

const (
	Weather Kind = iota
	Anchor
	Collision
	Emergency
)

func (k Kind) String() string {
	switch k {
	case Anchor:
		return "anchor"
	case Collision:
		return "collision"
	case Emergency:
		return "emergency"
	default:
		return "weather"
	}
}

// outranks reports whether k has priority over other. Emergency beats
// collision, collision beats anchor, anchor beats weather.
func (k Kind) outranks(other Kind) bool {
	return k > other
}

// Tone is a single sine burst.
type Tone struct {
	FrequencyHz float64
	Duration    time.Duration
}

// Profile is the tone and vibration pattern for one alarm kind. Haptic
// alternates on/off durations, starting with on.
type Profile struct {
	Tone   Tone
	Haptic []time.Duration
}

var profiles = map[Kind]Profile{
	Weather: {
		Tone:   Tone{FrequencyHz: 440, Duration: 400 * time.Millisecond},
		Haptic: []time.Duration{200 * time.Millisecond},
	},
	Anchor: {
		Tone:   Tone{FrequencyHz: 660, Duration: 800 * time.Millisecond},
		Haptic: []time.Duration{400 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond},
	},
	Collision: {
		Tone:   Tone{FrequencyHz: 1200, Duration: 1000 * time.Millisecond},
		Haptic: []time.Duration{150 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond, 100 * time.Millisecond, 150 * time.Millisecond},
	},
	Emergency: {
		Tone:   Tone{FrequencyHz: 880, Duration: 1500 * time.Millisecond},
		Haptic: []time.Duration{1000 * time.Millisecond},
	},
}

// ProfileFor returns the pattern played by Trigger for k.
func ProfileFor(k Kind) Profile {
	return profiles[k]
}

// Pulse is one step of the SOS cadence: a tone and a vibration of the same
// length.
type Pulse struct {
	Tone   Tone
	Haptic time.Duration
}

// Step is a pulse followed by the wait before the next step starts.
type Step struct {
	Pulse Pulse
	Wait  time.Duration
}

// SOS cadence timing.
const (
	SOSFrequencyHz = 880
	ShortPulse     = 200 * time.Millisecond
	LongPulse      = 500 * time.Millisecond
	PulseGap       = 100 * time.Millisecond
	LetterGap      = 300 * time.Millisecond
)

// SOSCadence returns the nine steps of ... --- ... in playing order.
func SOSCadence() []Step {
	steps := make([]Step, 0, 9)
	for letter, d := range []time.Duration{ShortPulse, LongPulse, ShortPulse} {
		for i := 0; i < 3; i++ {
			wait := d + PulseGap
			if i == 2 && letter < 2 {
				wait += LetterGap
			}
			steps = append(steps, Step{
				Pulse: Pulse{Tone: Tone{FrequencyHz: SOSFrequencyHz, Duration: d}, Haptic: d},
				Wait:  wait,
			})
		}
	}
	return steps
}

// CadenceDuration is the total playing time of steps.
func CadenceDuration(steps []Step) time.Duration {
	var total time.Duration
	for _, s := range steps {
		total += s.Wait
	}
	return total
}
