package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

const (
	// Radar display
	MaxRange      = 200.0 // Outer ring in meters
	AspectRatio   = 0.5   // Terminal char aspect correction (chars are ~2:1 tall)
	RingCount     = 4     // Number of concentric rings
	SweepSpeedRPM = 20    // Sweep rotations per minute
	SweepTrailDeg = 60.0  // Sweep trail angle in degrees
	TargetFPS     = 30    // Target frames per second

	// BLE beacons
	MeasuredPower   = -59.0            // RSSI at 1 meter (dBm)
	PathLossExp     = 2.0              // Free space path loss exponent
	SightingTimeout = 30 * time.Second // Beacon is gone after this long unseen
	EvictInterval   = 5 * time.Second  // How often stale beacons are dropped

	// Demo mode
	DemoFleetMin = 5 // Minimum simulated vessels
	DemoFleetMax = 8 // Maximum simulated vessels

	// App
	AppName    = "SEA-RADAR"
	AppVersion = "1.0"
)

// Config is the on-disk configuration. Zero fields are filled from Default.
type Config struct {
	VesselID   string `yaml:"vessel_id"`
	VesselName string `yaml:"vessel_name"`
	UserID     string `yaml:"user_id"`

	Position  PositionConfig  `yaml:"position"`
	Anchor    AnchorConfig    `yaml:"anchor"`
	Collision CollisionConfig `yaml:"collision"`
	Emergency EmergencyConfig `yaml:"emergency"`
	Presence  PresenceConfig  `yaml:"presence"`
	Alarm     AlarmConfig     `yaml:"alarm"`
	Sources   SourcesConfig   `yaml:"sources"`
	Settings  SettingsConfig  `yaml:"settings"`
	Log       LogConfig       `yaml:"log"`

	Database string `yaml:"database"`
}

type PositionConfig struct {
	MinUpdateInterval time.Duration `yaml:"min_update_interval"`
	MinMovementMeters float64       `yaml:"min_movement_meters"`
}

type AnchorConfig struct {
	DefaultRadiusMeters float64       `yaml:"default_radius_meters"`
	AlarmInterval       time.Duration `yaml:"alarm_interval"`
	AutoRearm           bool          `yaml:"auto_rearm"`
	Equirectangular     bool          `yaml:"equirectangular"`
}

type CollisionConfig struct {
	ScanInterval     time.Duration `yaml:"scan_interval"`
	DistanceMeters   float64       `yaml:"distance_meters"`
	PeerMinSpeed     float64       `yaml:"peer_min_speed"`
	ImpactThreshold  float64       `yaml:"impact_threshold"`
	CountdownSeconds int           `yaml:"countdown_seconds"`
}

type EmergencyConfig struct {
	RebroadcastInterval time.Duration `yaml:"rebroadcast_interval"`
}

type PresenceConfig struct {
	Throttle      time.Duration `yaml:"throttle"`
	WebSocketURL  string        `yaml:"websocket_url"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPassword string        `yaml:"redis_password"`
	RedisChannel  string        `yaml:"redis_channel"`
	BLE           bool          `yaml:"ble"`
}

type AlarmConfig struct {
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	Bell         bool          `yaml:"bell"`
}

type SourcesConfig struct {
	GPSD     string `yaml:"gpsd"`
	NMEAPort string `yaml:"nmea_port"`
	NMEABaud int    `yaml:"nmea_baud"`
	Simulate bool   `yaml:"simulate"`
}

// SettingsConfig holds the initial user toggles. They can be changed at
// runtime and are hot-reloaded from the file.
type SettingsConfig struct {
	RadarEnabled bool `yaml:"radar_enabled"`
	Offline      bool `yaml:"offline"`
	Recording    bool `yaml:"recording"`
	Sharing      bool `yaml:"sharing"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the standard thresholds.
func Default() Config {
	return Config{
		Position: PositionConfig{
			MinUpdateInterval: 1000 * time.Millisecond,
			MinMovementMeters: 2,
		},
		Anchor: AnchorConfig{
			DefaultRadiusMeters: 40,
			AlarmInterval:       3000 * time.Millisecond,
		},
		Collision: CollisionConfig{
			ScanInterval:     3000 * time.Millisecond,
			DistanceMeters:   50,
			PeerMinSpeed:     0.5,
			ImpactThreshold:  25,
			CountdownSeconds: 30,
		},
		Emergency: EmergencyConfig{
			RebroadcastInterval: 5000 * time.Millisecond,
		},
		Presence: PresenceConfig{
			Throttle: 5000 * time.Millisecond,
		},
		Alarm: AlarmConfig{
			RetryBackoff: 2 * time.Second,
			Bell:         true,
		},
		Sources: SourcesConfig{
			NMEABaud: 4800,
		},
		Settings: SettingsConfig{
			RadarEnabled: true,
			Sharing:      true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Database: "sea-radar.db",
	}
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are an error.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// EnsureVesselID assigns a random vessel id if none is configured.
func (c *Config) EnsureVesselID() string {
	if c.VesselID == "" {
		c.VesselID = uuid.NewString()
	}
	return c.VesselID
}

// SaveVesselID records id as vessel_id in the config file at path so the
// vessel keeps its identity across restarts. Other keys and comments are
// kept; a missing file is created.
func SaveVesselID(path, id string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
		}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}
	setScalar(root, "vessel_id", id)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// setScalar sets key in a mapping node, adding it first when absent.
func setScalar(m *yaml.Node, key, value string) {
	val := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = val
			return
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	m.Content = append([]*yaml.Node{k, val}, m.Content...)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var result *multierror.Error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			result = multierror.Append(result, fmt.Errorf(format, args...))
		}
	}
	positive := func(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

	check(c.Position.MinUpdateInterval > 0, "position.min_update_interval must be positive")
	check(c.Position.MinMovementMeters >= 0, "position.min_movement_meters must not be negative")
	check(positive(c.Anchor.DefaultRadiusMeters), "anchor.default_radius_meters must be positive, got %v", c.Anchor.DefaultRadiusMeters)
	check(c.Anchor.AlarmInterval > 0, "anchor.alarm_interval must be positive")
	check(c.Collision.ScanInterval > 0, "collision.scan_interval must be positive")
	check(positive(c.Collision.DistanceMeters), "collision.distance_meters must be positive")
	check(c.Collision.PeerMinSpeed >= 0, "collision.peer_min_speed must not be negative")
	check(positive(c.Collision.ImpactThreshold), "collision.impact_threshold must be positive")
	check(c.Collision.CountdownSeconds > 0, "collision.countdown_seconds must be positive")
	check(c.Emergency.RebroadcastInterval > 0, "emergency.rebroadcast_interval must be positive")
	check(c.Presence.Throttle > 0, "presence.throttle must be positive")
	check(c.Presence.RedisDB >= 0, "presence.redis_db must not be negative")
	check(c.Alarm.RetryBackoff > 0, "alarm.retry_backoff must be positive")
	check(c.Sources.NMEABaud > 0, "sources.nmea_baud must be positive")
	if c.Presence.WebSocketURL != "" {
		check(strings.HasPrefix(c.Presence.WebSocketURL, "ws://") || strings.HasPrefix(c.Presence.WebSocketURL, "wss://"),
			"presence.websocket_url must be a ws:// or wss:// URL")
	}
	return result.ErrorOrNil()
}
