package app

import (
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"sea-radar.klederson.com/internal/config"
	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/radar"
	"sea-radar.klederson.com/internal/safety"
	"sea-radar.klederson.com/internal/ui"
)

const (
	noticeTTL  = 5 * time.Second
	flashFor   = 400 * time.Millisecond
	minRange   = 50.0
	maxRange   = 3200.0
	impactTest = 40.0 // m/s², well over any threshold
)

// shared holds state shared between the Bubble Tea model copies and main.go.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	rt    *Runtime
	sweep *radar.Sweep
}

// AppModel is the root Bubble Tea model for Sea Radar.
type AppModel struct {
	width  int
	height int

	cursor   int
	maxRange float64
	notice   string
	noticeAt time.Time

	shared *shared

	// Cached snapshot
	snap     safety.Snapshot
	contacts []radar.Contact
	distress int
	now      time.Time
}

// New creates a new AppModel over a built runtime.
func New(rt *Runtime) AppModel {
	return AppModel{
		maxRange: config.MaxRange,
		shared: &shared{
			rt:    rt,
			sweep: radar.NewSweep(),
		},
	}
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		evictCmd(),
	)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		m.refresh(time.Time(msg))
		return m, tickCmd()

	case EvictMsg:
		m.shared.rt.EvictStale(time.Time(msg))
		return m, evictCmd()
	}

	return m, nil
}

// refresh pulls fresh state from the engine and registry.
func (m *AppModel) refresh(now time.Time) {
	rt := m.shared.rt
	m.now = now
	m.shared.sweep.Update(now)
	m.snap = rt.Engine.Snapshot()
	m.contacts = radar.Contacts(m.snap.Position.Point(), m.snap.HasPosition,
		rt.Registry.Snapshot(), m.snap.Collision.PeerID)
	m.distress = rt.Registry.CountDistress()
	if m.cursor >= len(m.contacts) {
		m.cursor = max(0, len(m.contacts)-1)
	}
	if m.notice != "" && now.Sub(m.noticeAt) > noticeTTL {
		m.notice = ""
	}
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rt := m.shared.rt
	var err error

	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "a", "A":
		if m.snap.Anchor.Active {
			err = rt.Engine.LiftAnchor()
		} else {
			err = rt.Engine.DropAnchorHere(rt.Config.Anchor.DefaultRadiusMeters)
		}

	case "k", "K":
		err = rt.Engine.AcknowledgeAnchor()

	case "s", "S":
		err = rt.Engine.ToggleEmergency()

	case "d", "D":
		err = rt.Engine.DismissEmergency()

	case "c", "C":
		err = rt.Engine.DismissCollisionCountdown()

	case "r", "R":
		rt.Settings.ToggleRadar()

	case "o", "O":
		rt.Settings.ToggleOffline()

	case "p", "P":
		rt.Settings.ToggleSharing()

	case "t", "T":
		err = rt.SetRecording(!rt.Settings.Recording())

	case "x", "X":
		if rt.Config.Sources.Simulate {
			rt.Engine.OnMotion(safety.MotionSample{Az: impactTest})
		}

	case "+", "=":
		m.maxRange = max(minRange, m.maxRange/2)

	case "-", "_":
		m.maxRange = min(maxRange, m.maxRange*2)

	case "up":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down":
		if m.cursor < len(m.contacts)-1 {
			m.cursor++
		}

	case "home":
		m.cursor = 0

	case "end":
		if len(m.contacts) > 0 {
			m.cursor = len(m.contacts) - 1
		}
	}

	if err != nil {
		m.notice = noticeFor(err)
		m.noticeAt = time.Now()
	}
	m.refresh(time.Now())
	return m, nil
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, safety.ErrNoPosition):
		return "no GPS fix yet"
	case errors.Is(err, safety.ErrDismissRequired):
		return "SOS active: press D to dismiss"
	case errors.Is(err, safety.ErrNothingToDismiss), errors.Is(err, safety.ErrNoCountdown):
		return "nothing to dismiss"
	case errors.Is(err, safety.ErrAnchorNotTriggered):
		return "anchor alarm is not sounding"
	}
	return err.Error()
}

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing Sea Radar..."
	}
	rt := m.shared.rt

	menuH := 1
	statusH := 1
	bodyH := m.height - menuH - statusH
	if bodyH < 5 {
		bodyH = 5
	}

	radarW := m.width * 3 / 5
	if radarW < 30 {
		radarW = 30
	}
	sideW := m.width - radarW
	if sideW < 24 {
		sideW = 24
		radarW = m.width - sideW
	}

	menuBar := ui.RenderMenuBar(m.width, rt.Config.VesselName, rt.SourceName)

	innerW := max(5, radarW-4)
	innerH := max(3, bodyH-4)
	radarContent := radar.Render(innerW, innerH, m.contacts, m.overlay(), m.shared.sweep)
	legend := radar.RenderLegend(innerW)
	radarPanel := ui.RenderRadarPanel(radarW, bodyH, radarContent, legend, m.alert())

	view := ui.SafetyView{
		Snapshot: m.snap,
		Distress: m.distress,
		Notice:   m.notice,
		Now:      m.now,
	}
	if m.cursor < len(m.contacts) {
		view.Selected = &m.contacts[m.cursor]
	}
	safetyH := bodyH * 3 / 5
	safetyPanel := ui.RenderSafetyPanel(view, sideW, safetyH)
	if view.Alarming() && rt.Sounding(flashFor) {
		safetyPanel = ui.StyleStatusAlarm.Render(safetyPanel)
	}
	vesselList := ui.RenderVesselList(m.contacts, sideW, bodyH-safetyH, m.cursor)

	statusBar := ui.RenderStatusBar(m.width, ui.StatusInfo{
		Peers:     len(m.contacts),
		Radar:     rt.Settings.RadarEnabled(),
		Offline:   rt.Settings.Offline(),
		Sharing:   rt.Settings.SharingEnabled(),
		Recording: rt.Settings.Recording(),
		Links:     rt.Links(),
		SweepDeg:  m.shared.sweep.Degrees(),
		MaxRange:  m.maxRange,
	})

	return ui.ComposeLayout(menuBar, radarPanel, safetyPanel, vesselList, statusBar)
}

// alert reports a vessel in distress or a collision countdown on the scope.
func (m AppModel) alert() bool {
	if m.snap.Collision.Counting {
		return true
	}
	for _, c := range m.contacts {
		if c.Distress {
			return true
		}
	}
	return false
}

func (m AppModel) overlay() radar.Overlay {
	ov := radar.Overlay{MaxRange: m.maxRange}
	a := m.snap.Anchor
	if a.Active && m.snap.HasPosition {
		self := m.snap.Position.Point()
		anchor := geo.Point{Lat: a.Lat, Lng: a.Lng}
		ov.Anchor = &radar.AnchorMark{
			Angle:    geo.Radians(geo.BearingDegrees(self, anchor)),
			Distance: geo.DistanceMeters(self, anchor),
			Radius:   a.RadiusMeters,
			Alarm:    a.Phase() == safety.AnchorTriggered,
		}
	}
	return ov
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func evictCmd() tea.Cmd {
	return tea.Tick(config.EvictInterval, func(t time.Time) tea.Msg {
		return EvictMsg(t)
	})
}
