package gps

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"sea-radar.klederson.com/internal/position"
)

// DefaultGPSDAddr is gpsd's standard listen address.
const DefaultGPSDAddr = "localhost:2947"

const watchCommand = `?WATCH={"enable":true,"json":true}` + "\n"

// tpvMessage is the subset of a gpsd TPV report used here.
type tpvMessage struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Time  string  `json:"time"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Track float64 `json:"track"`
	Speed float64 `json:"speed"` // m/s
	Eph   float64 `json:"eph"`
	Epx   float64 `json:"epx"`
	Epy   float64 `json:"epy"`

	hasTrack bool
	hasSpeed bool
}

func (m *tpvMessage) UnmarshalJSON(data []byte) error {
	type plain tpvMessage
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(data, (*plain)(m)); err != nil {
		return err
	}
	_, m.hasTrack = raw["track"]
	_, m.hasSpeed = raw["speed"]
	return nil
}

// GPSD reads TPV reports from a gpsd daemon, reconnecting on failure.
type GPSD struct {
	Addr           string
	ReconnectDelay time.Duration
	Log            logrus.FieldLogger
}

// Run implements Source.
func (g *GPSD) Run(ctx context.Context, sink Sink) error {
	addr := g.Addr
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	delay := g.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	log := g.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"component": "gpsd", "addr": addr})

	for {
		err := g.session(ctx, addr, sink, log)
		if ctx.Err() != nil {
			return nil
		}
		log.WithError(err).WithField("retry_in", delay).Warn("gpsd connection lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (g *GPSD) session(ctx context.Context, addr string, sink Sink, log logrus.FieldLogger) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial gpsd: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	log.Info("connected to gpsd")
	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return fmt.Errorf("enable watch: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if s, ok := parseTPV(scanner.Bytes()); ok {
			sink.OnRawPosition(s)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read gpsd: %w", err)
	}
	return fmt.Errorf("gpsd closed the connection")
}

// parseTPV converts one gpsd JSON line into a sample. Reports without a 2D
// fix and non-TPV classes are skipped.
func parseTPV(line []byte) (position.Sample, bool) {
	var msg tpvMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return position.Sample{}, false
	}
	if msg.Class != "TPV" || msg.Mode < 2 {
		return position.Sample{}, false
	}

	s := position.Sample{
		Lat:            msg.Lat,
		Lng:            msg.Lon,
		AccuracyMeters: msg.Eph,
	}
	if s.AccuracyMeters <= 0 {
		s.AccuracyMeters = math.Max(msg.Epx, msg.Epy)
	}
	if msg.hasSpeed {
		s.Speed = position.Float(msg.Speed)
	}
	if msg.hasTrack {
		s.Heading = position.Float(msg.Track)
	}
	if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
		s.Timestamp = t
	}
	return s, true
}
