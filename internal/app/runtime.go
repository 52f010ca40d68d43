package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/alarm"
	"sea-radar.klederson.com/internal/bluetooth"
	"sea-radar.klederson.com/internal/clock"
	"sea-radar.klederson.com/internal/config"
	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/gps"
	"sea-radar.klederson.com/internal/position"
	"sea-radar.klederson.com/internal/presence"
	"sea-radar.klederson.com/internal/presence/redisbus"
	"sea-radar.klederson.com/internal/presence/wsclient"
	"sea-radar.klederson.com/internal/safety"
	"sea-radar.klederson.com/internal/store"
)

const trackWriteTimeout = 2 * time.Second

// Runtime owns every long-lived component and the goroutines that drive
// them.
type Runtime struct {
	Config      config.Config
	ConfigPath  string
	Settings    *config.Settings
	Registry    *presence.Registry
	Tracker     *position.Tracker
	Broadcaster *presence.Broadcaster
	Engine      *safety.Engine
	Signaler    *alarm.Signaler
	Store       *store.Store // nil when persistence is off

	Source     gps.Source
	SourceName string

	ws         *wsclient.Client
	bus        *redisbus.Bus
	scanner    *bluetooth.Scanner
	advertiser *bluetooth.Advertiser
	fleet      *bluetooth.MockFleet

	lastTone atomic.Int64 // unix nanos of the last alarm tone
	log      logrus.FieldLogger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Build wires the components described by cfg. bell receives the audible
// alarm; pass nil for silence.
func Build(cfg config.Config, configPath string, bell io.Writer, log logrus.FieldLogger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clk := clock.Real{}
	generated := cfg.VesselID == ""
	vesselID := cfg.EnsureVesselID()
	if generated && configPath != "" {
		if err := config.SaveVesselID(configPath, vesselID); err != nil {
			log.WithError(err).Warn("Could not save vessel id; a new one will be generated next run")
		}
	}
	rt := &Runtime{
		Config:     cfg,
		ConfigPath: configPath,
		Settings:   config.NewSettings(cfg.Settings),
		Registry:   presence.NewRegistry(vesselID),
		log:        log,
	}
	rt.Tracker = position.NewTracker(position.Config{
		MinUpdateInterval: cfg.Position.MinUpdateInterval,
		MinMovementMeters: cfg.Position.MinMovementMeters,
	}, clk, log)

	if cfg.Database != "" {
		st, err := store.Open(cfg.Database, log)
		if err != nil {
			return nil, err
		}
		rt.Store = st
		if rt.Settings.Recording() {
			if err := st.SetRecording(true); err != nil {
				log.WithError(err).Warn("Could not start track recording")
			}
		}
		rt.Tracker.OnAccept(rt.recordTrack)
	}

	var backend alarm.Backend = alarm.Nop{}
	if cfg.Alarm.Bell && bell != nil {
		backend = alarm.Terminal{Out: bell}
	}
	rt.Signaler = alarm.NewSignaler(alarm.Hooked{
		Backend: backend,
		OnTone:  func(alarm.Tone) { rt.lastTone.Store(time.Now().UnixNano()) },
	}, cfg.Alarm.RetryBackoff, clk, log)

	rt.Broadcaster = presence.NewBroadcaster(vesselID, cfg.Presence.Throttle, rt.Settings, clk, log)
	if err := rt.buildTransports(cfg, vesselID); err != nil {
		rt.Close()
		return nil, err
	}

	deps := safety.Deps{
		Tracker:    rt.Tracker,
		Peers:      rt.Registry,
		Conditions: rt.Settings,
		Alarm:      rt.Signaler,
		Presence:   rt.Broadcaster,
		Clock:      clk,
		Log:        log,
	}
	if rt.Store != nil {
		deps.Distress = rt.Store
	}
	rt.Engine = safety.New(deps, EngineOptions(cfg, logTransitions(log)))

	rt.buildSource(cfg)
	return rt, nil
}

// EngineOptions maps the configuration onto engine options.
func EngineOptions(cfg config.Config, onChange func(safety.Snapshot)) safety.Options {
	return safety.Options{
		AnchorAlarmInterval:     cfg.Anchor.AlarmInterval,
		CollisionScanInterval:   cfg.Collision.ScanInterval,
		CollisionDistanceMeters: cfg.Collision.DistanceMeters,
		CollisionPeerMinSpeed:   cfg.Collision.PeerMinSpeed,
		ImpactThreshold:         cfg.Collision.ImpactThreshold,
		CountdownSeconds:        cfg.Collision.CountdownSeconds,
		SOSRebroadcastInterval:  cfg.Emergency.RebroadcastInterval,
		AnchorAutoRearm:         cfg.Anchor.AutoRearm,
		Equirectangular:         cfg.Anchor.Equirectangular,
		UserID:                  cfg.UserID,
		OnChange:                onChange,
	}
}

func (rt *Runtime) buildTransports(cfg config.Config, vesselID string) error {
	p := cfg.Presence
	if p.WebSocketURL != "" {
		rt.ws = wsclient.New(wsclient.Config{URL: p.WebSocketURL, SelfID: vesselID}, rt.Registry, rt.log)
		rt.Broadcaster.AddPublisher(rt.ws)
	}
	if p.RedisAddr != "" {
		channel := p.RedisChannel
		if channel == "" {
			channel = redisbus.DefaultChannel
		}
		pool := redisbus.NewPool(p.RedisAddr, p.RedisDB, p.RedisPassword)
		rt.bus = redisbus.New(pool, channel, vesselID, rt.Registry, rt.log)
		rt.Broadcaster.AddPublisher(rt.bus)
	}
	if p.BLE {
		adapter, err := bluetooth.EnableAdapter()
		if err != nil {
			return err
		}
		id := bluetooth.BeaconIDFor(vesselID)
		rt.scanner = bluetooth.NewScanner(adapter, rt.Registry, id, rt.log)
		rt.advertiser = bluetooth.NewAdvertiser(adapter, id, cfg.VesselName)
		rt.Broadcaster.AddPublisher(rt.advertiser)
	}
	return nil
}

func (rt *Runtime) buildSource(cfg config.Config) {
	s := cfg.Sources
	switch {
	case s.Simulate:
		rt.Source, rt.SourceName = gps.DefaultSimulator(), "simulator"
		rt.fleet = bluetooth.NewMockFleet(rt.Registry, rt.ownPoint,
			config.DemoFleetMin, config.DemoFleetMax, time.Now().UnixNano())
	case s.NMEAPort != "":
		rt.Source = &gps.Serial{Port: s.NMEAPort, BaudRate: s.NMEABaud, Log: rt.log}
		rt.SourceName = s.NMEAPort
	default:
		addr := s.GPSD
		if addr == "" {
			addr = gps.DefaultGPSDAddr
		}
		rt.Source = &gps.GPSD{Addr: addr, Log: rt.log}
		rt.SourceName = "gpsd " + addr
	}
}

func (rt *Runtime) ownPoint() (geo.Point, bool) {
	p, ok := rt.Tracker.Last()
	return p.Point(), ok
}

func (rt *Runtime) recordTrack(p position.Position) {
	if rt.Store == nil || !rt.Store.Recording() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), trackWriteTimeout)
	defer cancel()
	if _, err := rt.Store.AppendTrackPoint(ctx, p); err != nil {
		rt.log.WithError(err).Warn("Could not record track point")
	}
}

// Start launches the position source, transports and watchers.
func (rt *Runtime) Start(ctx context.Context) error {
	ctx, rt.cancel = context.WithCancel(ctx)

	if err := rt.Engine.Start(); err != nil {
		return err
	}
	rt.goRun("position source", func() error { return rt.Source.Run(ctx, rt.Engine) })
	if rt.ws != nil {
		rt.goRun("websocket", func() error { return rt.ws.Run(ctx) })
	}
	if rt.bus != nil {
		rt.goRun("redis", func() error { return rt.bus.Run(ctx) })
	}
	if rt.scanner != nil {
		if err := rt.scanner.Start(); err != nil {
			return err
		}
	}
	if rt.fleet != nil {
		rt.fleet.Start(time.Second)
	}
	if rt.ConfigPath != "" {
		rt.goRun("config watcher", func() error {
			return config.Watch(ctx, rt.ConfigPath, rt.applyConfig, rt.log)
		})
	}
	return nil
}

func (rt *Runtime) goRun(name string, f func() error) {
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		if err := f(); err != nil {
			rt.log.WithError(err).Errorf("%s stopped", name)
		}
	}()
}

// applyConfig picks up edited toggles. Thresholds need a restart.
func (rt *Runtime) applyConfig(cfg config.Config) {
	wasRecording := rt.Settings.Recording()
	if !rt.Settings.Apply(cfg.Settings) {
		return
	}
	if cfg.Settings.Recording != wasRecording {
		if err := rt.SetRecording(cfg.Settings.Recording); err != nil {
			rt.log.WithError(err).Warn("Could not change track recording")
		}
	}
}

// SetRecording turns track recording on or off.
func (rt *Runtime) SetRecording(on bool) error {
	if rt.Store == nil {
		rt.Settings.SetRecording(false)
		if on {
			return fmt.Errorf("track recording needs a database")
		}
		return nil
	}
	if err := rt.Store.SetRecording(on); err != nil {
		return err
	}
	rt.Settings.SetRecording(on)
	return nil
}

// EvictStale drops BLE beacons that went quiet.
func (rt *Runtime) EvictStale(now time.Time) int {
	if rt.scanner == nil {
		return 0
	}
	return rt.scanner.Evict(config.SightingTimeout, now)
}

// Links names the presence transports that are currently connected.
func (rt *Runtime) Links() []string {
	var links []string
	if rt.ws != nil && rt.ws.Connected() {
		links = append(links, "ws")
	}
	if rt.bus != nil && rt.bus.Subscribed() {
		links = append(links, "redis")
	}
	if rt.scanner != nil {
		links = append(links, "ble")
	}
	if rt.fleet != nil {
		links = append(links, "demo")
	}
	return links
}

// Sounding reports whether an alarm tone played within d.
func (rt *Runtime) Sounding(d time.Duration) bool {
	last := rt.lastTone.Load()
	return last != 0 && time.Since(time.Unix(0, last)) < d
}

// Close stops everything and reports every teardown failure.
func (rt *Runtime) Close() error {
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.fleet != nil {
		rt.fleet.Stop()
	}
	if rt.scanner != nil {
		rt.scanner.Stop()
	}
	rt.wg.Wait()

	var result *multierror.Error
	if rt.Engine != nil {
		if err := rt.Engine.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if rt.advertiser != nil {
		if err := rt.advertiser.Stop(); err != nil {
			result = multierror.Append(result, fmt.Errorf("ble advertiser: %w", err))
		}
	}
	if rt.Signaler != nil {
		if err := rt.Signaler.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("alarm: %w", err))
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// logTransitions logs safety state changes as they happen.
func logTransitions(log logrus.FieldLogger) func(safety.Snapshot) {
	var (
		mu   sync.Mutex
		prev safety.Snapshot
	)
	return func(s safety.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if a, b := prev.Anchor.Phase(), s.Anchor.Phase(); a != b {
			log.WithFields(logrus.Fields{"from": a, "to": b, "radius": s.Anchor.RadiusMeters}).Info("Anchor watch")
		}
		if prev.Collision.Counting != s.Collision.Counting {
			log.WithFields(logrus.Fields{"counting": s.Collision.Counting, "cause": s.Collision.Cause, "peer": s.Collision.PeerID}).
				Info("Collision countdown")
		}
		if prev.Emergency.Active != s.Emergency.Active {
			log.WithFields(logrus.Fields{"active": s.Emergency.Active, "source": s.Emergency.Source, "record": s.Emergency.RecordID}).
				Warn("Emergency")
		}
		if !prev.SensorFailed && s.SensorFailed {
			log.Error("Position sensor lost")
		}
		prev = s
	}
}
