package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sea-radar.klederson.com/internal/app"
	"sea-radar.klederson.com/internal/config"
	"sea-radar.klederson.com/internal/store"
)

var (
	flagConfig   string
	flagDemo     bool
	flagGPSD     string
	flagNMEA     string
	flagBaud     int
	flagWS       string
	flagRedis    string
	flagBLE      bool
	flagDB       string
	flagVessel   string
	flagLogLevel string
	flagLogFile  string
	flagLimit    int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sea-radar",
		Short: "Sea Radar - Anchor watch, collision warning and SOS for small boats",
		Long: `Sea Radar watches your anchor, warns when another vessel closes in fast
and raises an SOS that keeps rebroadcasting your position to everyone nearby.

Position comes from gpsd, an NMEA 0183 serial device, or the built-in
simulator. Nearby vessels are shared over a websocket channel, Redis
pub/sub and BLE beacons.

Use --demo for a simulated boat and fleet, no hardware needed.`,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "sea-radar.yaml", "Config file (hot-reloaded)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Write logs to this file")

	rootCmd.Flags().BoolVar(&flagDemo, "demo", false, "Run in demo mode with a simulated boat and fleet")
	rootCmd.Flags().StringVar(&flagGPSD, "gpsd", "", "gpsd address (default localhost:2947)")
	rootCmd.Flags().StringVar(&flagNMEA, "nmea-port", "", "Read NMEA 0183 from this serial port instead of gpsd")
	rootCmd.Flags().IntVar(&flagBaud, "baud", 0, "NMEA serial baud rate (default 4800)")
	rootCmd.Flags().StringVar(&flagWS, "ws", "", "Presence websocket URL (ws:// or wss://)")
	rootCmd.Flags().StringVar(&flagRedis, "redis", "", "Redis address for presence pub/sub")
	rootCmd.Flags().BoolVar(&flagBLE, "ble", false, "Share presence over BLE beacons (needs CAP_NET_ADMIN)")
	rootCmd.Flags().StringVar(&flagVessel, "vessel", "", "Vessel name shown to others")

	rootCmd.AddCommand(distressCmd(), tracksCmd(), configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("demo") {
		cfg.Sources.Simulate = flagDemo
	}
	if flagGPSD != "" {
		cfg.Sources.GPSD = flagGPSD
	}
	if flagNMEA != "" {
		cfg.Sources.NMEAPort = flagNMEA
	}
	if flagBaud > 0 {
		cfg.Sources.NMEABaud = flagBaud
	}
	if flagWS != "" {
		cfg.Presence.WebSocketURL = flagWS
	}
	if flagRedis != "" {
		cfg.Presence.RedisAddr = flagRedis
	}
	if flags.Changed("ble") {
		cfg.Presence.BLE = flagBLE
	}
	if flagDB != "" {
		cfg.Database = flagDB
	}
	if flagVessel != "" {
		cfg.VesselName = flagVessel
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFile != "" {
		cfg.Log.File = flagLogFile
	}
	return cfg, cfg.Validate()
}

// newLogger builds the logger. The TUI owns the terminal, so without a log
// file output is discarded.
func newLogger(cfg config.LogConfig, interactive bool) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	log.SetLevel(level)

	switch {
	case cfg.File != "":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		log.SetOutput(f)
		log.SetFormatter(&logrus.JSONFormatter{})
		return log, f, nil
	case interactive:
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(os.Stderr)
	}
	return log, io.NopCloser(nil), nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, logFile, err := newLogger(cfg.Log, true)
	if err != nil {
		return err
	}
	defer logFile.Close()

	rt, err := app.Build(cfg, flagConfig, os.Stdout, log)
	if err != nil {
		if cfg.Presence.BLE {
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
			fmt.Fprintln(os.Stderr, "BLE beacons require elevated permissions.")
			fmt.Fprintln(os.Stderr, "Try one of:")
			fmt.Fprintln(os.Stderr, "  sudo ./sea-radar --ble")
			fmt.Fprintln(os.Stderr, "  sudo setcap cap_net_admin+ep ./sea-radar")
			fmt.Fprintln(os.Stderr, "  ./sea-radar --demo    (demo mode, no hardware needed)")
		}
		return err
	}

	log.WithFields(logrus.Fields{
		"vessel": cfg.VesselID,
		"source": rt.SourceName,
	}).Info("Starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.Start(ctx); err != nil {
		_ = rt.Close()
		return err
	}

	p := tea.NewProgram(
		app.New(rt),
		tea.WithAltScreen(),
		tea.WithFPS(config.TargetFPS),
	)
	_, runErr := p.Run()

	cancel()
	if err := rt.Close(); err != nil {
		log.WithError(err).Error("Shutdown")
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// openStore opens the database for the read-only subcommands.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("no database configured")
	}
	log, _, err := newLogger(config.LogConfig{Level: "warn"}, false)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Database, log)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func distressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "distress",
		Short: "Inspect recorded distress events",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent distress records",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			recs, err := st.ListDistress(cmd.Context(), flagLimit)
			if err != nil {
				return err
			}
			t := newTable("ID", "SOURCE", "STATUS", "POSITION", "RAISED", "RESOLVED")
			for _, r := range recs {
				pos := "unknown"
				if r.Located {
					pos = fmt.Sprintf("%.5f, %.5f", r.Lat, r.Lng)
				}
				t.Row(shortID(r.ID), string(r.Source), r.Status, pos, formatTime(r.CreatedAt), formatTime(r.ResolvedAt))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	list.Flags().IntVar(&flagLimit, "limit", 20, "Maximum records to show")
	cmd.AddCommand(list)
	return cmd
}

func tracksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "Inspect recorded tracks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			tracks, err := st.ListTracks(cmd.Context())
			if err != nil {
				return err
			}
			t := newTable("ID", "STARTED", "ENDED", "POINTS", "DISTANCE")
			for _, tr := range tracks {
				t.Row(tr.ID, formatTime(tr.StartedAt), formatTime(tr.EndedAt),
					fmt.Sprint(tr.Points), fmt.Sprintf("%.2f nm", tr.DistanceMeters/1852))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <track-id>",
		Short: "Print the fixes of one track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			points, err := st.TrackPoints(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := newTable("TIME", "LAT", "LNG", "ACCURACY", "SPEED", "HEADING")
			for _, p := range points {
				t.Row(formatTime(p.CapturedAt), fmt.Sprintf("%.6f", p.Lat), fmt.Sprintf("%.6f", p.Lng),
					fmt.Sprintf("%.0fm", p.AccuracyMeters), optional(p.Speed, "%.1f m/s"), optional(p.Heading, "%03.0f°"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	})
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
