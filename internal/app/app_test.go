package app

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sea-radar.klederson.com/internal/config"
	"sea-radar.klederson.com/internal/position"
	"sea-radar.klederson.com/internal/presence"
	"sea-radar.klederson.com/internal/safety"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.VesselName = "Albatross"
	cfg.Sources.Simulate = true
	cfg.Database = filepath.Join(t.TempDir(), "sea-radar.db")
	cfg.Alarm.Bell = false

	log, _ := test.NewNullLogger()
	rt, err := Build(cfg, "", nil, log)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, rt.Close()) })
	return rt
}

func press(m AppModel, key string) AppModel {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return next.(AppModel)
}

func TestBuildDemoRuntime(t *testing.T) {
	rt := newTestRuntime(t)
	assert.NotEmpty(t, rt.Config.VesselID)
	assert.Equal(t, "simulator", rt.SourceName)
	assert.NotNil(t, rt.Store)
	assert.Equal(t, []string{"demo"}, rt.Links())
	assert.Zero(t, rt.EvictStale(time.Now()))
}

func TestBuildKeepsGeneratedVesselID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sea-radar.yaml")
	log, _ := test.NewNullLogger()

	build := func() string {
		cfg, err := config.Load(path)
		require.NoError(t, err)
		cfg.Sources.Simulate = true
		cfg.Database = ""
		cfg.Alarm.Bell = false
		rt, err := Build(cfg, path, nil, log)
		require.NoError(t, err)
		require.NoError(t, rt.Close())
		return rt.Config.VesselID
	}

	first := build()
	require.NotEmpty(t, first)
	assert.FileExists(t, path)
	assert.Equal(t, first, build())
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Collision.CountdownSeconds = 0
	log, _ := test.NewNullLogger()
	_, err := Build(cfg, "", nil, log)
	assert.Error(t, err)
}

func TestEngineOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Anchor.AutoRearm = true
	cfg.UserID = "u-1"
	opts := EngineOptions(cfg, nil)
	assert.Equal(t, 3*time.Second, opts.AnchorAlarmInterval)
	assert.Equal(t, 50.0, opts.CollisionDistanceMeters)
	assert.Equal(t, 30, opts.CountdownSeconds)
	assert.True(t, opts.AnchorAutoRearm)
	assert.Equal(t, "u-1", opts.UserID)
}

func TestKeysDriveEngine(t *testing.T) {
	rt := newTestRuntime(t)
	m := New(rt)

	m = press(m, "a")
	assert.Equal(t, "no GPS fix yet", m.notice)
	assert.False(t, m.snap.Anchor.Active)

	_, ok := rt.Engine.OnRawPosition(position.Sample{Lat: 43.3713, Lng: -8.396, AccuracyMeters: 4, Timestamp: time.Now()})
	require.True(t, ok)

	m = press(m, "a")
	assert.True(t, m.snap.Anchor.Active)
	assert.Equal(t, 40.0, m.snap.Anchor.RadiusMeters)
	m = press(m, "a")
	assert.False(t, m.snap.Anchor.Active)

	m = press(m, "s")
	assert.True(t, m.snap.Emergency.Active)
	m = press(m, "s")
	assert.Equal(t, "SOS active: press D to dismiss", m.notice)
	m = press(m, "d")
	assert.False(t, m.snap.Emergency.Active)

	m = press(m, "c")
	assert.Equal(t, "nothing to dismiss", m.notice)
}

func TestKeysToggleSettings(t *testing.T) {
	rt := newTestRuntime(t)
	m := New(rt)

	m = press(m, "r")
	assert.False(t, rt.Settings.RadarEnabled())
	m = press(m, "o")
	assert.True(t, rt.Settings.Offline())
	assert.False(t, rt.Settings.SharingEnabled())
	m = press(m, "t")
	assert.True(t, rt.Settings.Recording())
	assert.True(t, rt.Store.Recording())

	m = press(m, "+")
	assert.Equal(t, config.MaxRange/2, m.maxRange)
	m = press(m, "-")
	m = press(m, "-")
	assert.Equal(t, config.MaxRange*2, m.maxRange)
}

func TestImpactKeyInDemo(t *testing.T) {
	rt := newTestRuntime(t)
	m := press(New(rt), "x")
	assert.True(t, m.snap.Collision.Counting)
	assert.Equal(t, safety.CauseImpact, m.snap.Collision.Cause)
	m = press(m, "c")
	assert.False(t, m.snap.Collision.Counting)
	assert.Empty(t, m.notice)
}

func TestViewShowsContacts(t *testing.T) {
	rt := newTestRuntime(t)
	_, ok := rt.Engine.OnRawPosition(position.Sample{Lat: 43.3713, Lng: -8.396, AccuracyMeters: 4, Timestamp: time.Now()})
	require.True(t, ok)
	rt.Registry.Upsert(presence.Peer{ID: "ws:Osprey", Lat: 43.3718, Lng: -8.396, Located: true, SpeedMetersPerSec: 2})

	next, _ := New(rt).Update(tea.WindowSizeMsg{Width: 140, Height: 44})
	next, _ = next.Update(TickMsg(time.Now()))
	m := next.(AppModel)
	require.Len(t, m.contacts, 1)

	out := m.View()
	assert.True(t, strings.Contains(out, "SEA-RADAR"))
	assert.Contains(t, out, "Osprey")
	assert.Contains(t, out, "VESSELS [1]")
}

func TestRecordingNeedsStore(t *testing.T) {
	cfg := config.Default()
	cfg.Database = ""
	cfg.Sources.Simulate = true
	log, _ := test.NewNullLogger()
	rt, err := Build(cfg, "", nil, log)
	require.NoError(t, err)
	defer rt.Close()

	assert.Error(t, rt.SetRecording(true))
	assert.False(t, rt.Settings.Recording())
	assert.NoError(t, rt.SetRecording(false))
}

func TestNoticeFor(t *testing.T) {
	assert.Equal(t, "anchor alarm is not sounding", noticeFor(safety.ErrAnchorNotTriggered))
	assert.Equal(t, "boom", noticeFor(errors.New("boom")))
}
