package config

import "sync/atomic"

// Settings are the runtime user toggles. Safe for concurrent use.
type Settings struct {
	radar     atomic.Bool
	offline   atomic.Bool
	recording atomic.Bool
	sharing   atomic.Bool
}

func NewSettings(c SettingsConfig) *Settings {
	s := &Settings{}
	s.Apply(c)
	return s
}

func (s *Settings) RadarEnabled() bool { return s.radar.Load() }

func (s *Settings) Offline() bool { return s.offline.Load() }

func (s *Settings) Recording() bool { return s.recording.Load() }

// SharingEnabled reports whether our position may leave the device.
// Offline mode always wins.
func (s *Settings) SharingEnabled() bool {
	return s.sharing.Load() && !s.offline.Load()
}

func (s *Settings) SetRadarEnabled(v bool) { s.radar.Store(v) }

func (s *Settings) SetOffline(v bool) { s.offline.Store(v) }

func (s *Settings) SetRecording(v bool) { s.recording.Store(v) }

func (s *Settings) SetSharing(v bool) { s.sharing.Store(v) }

// Toggle helpers return the new value.

func (s *Settings) ToggleRadar() bool { return toggle(&s.radar) }

func (s *Settings) ToggleOffline() bool { return toggle(&s.offline) }

func (s *Settings) ToggleRecording() bool { return toggle(&s.recording) }

func (s *Settings) ToggleSharing() bool { return toggle(&s.sharing) }

// Current returns the toggles as a config value.
func (s *Settings) Current() SettingsConfig {
	return SettingsConfig{
		RadarEnabled: s.radar.Load(),
		Offline:      s.offline.Load(),
		Recording:    s.recording.Load(),
		Sharing:      s.sharing.Load(),
	}
}

// Apply stores c and reports whether anything changed.
func (s *Settings) Apply(c SettingsConfig) bool {
	changed := s.radar.Swap(c.RadarEnabled) != c.RadarEnabled
	changed = s.offline.Swap(c.Offline) != c.Offline || changed
	changed = s.recording.Swap(c.Recording) != c.Recording || changed
	changed = s.sharing.Swap(c.Sharing) != c.Sharing || changed
	return changed
}

func toggle(b *atomic.Bool) bool {
	for {
		old := b.Load()
		if b.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
