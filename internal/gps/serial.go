package gps

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"sea-radar.klederson.com/internal/position"
)

// DefaultBaudRate is the NMEA 0183 standard rate.
const DefaultBaudRate = 4800

// Serial reads NMEA 0183 from a serial port, e.g. /dev/ttyUSB0.
type Serial struct {
	Port     string
	BaudRate int
	Log      logrus.FieldLogger
}

// Mode returns the 8N1 serial mode for the configured rate.
func (s *Serial) Mode() *serial.Mode {
	baud := s.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Run implements Source. A port that cannot be opened, or that fails while
// reading, is reported to the sink as an unavailable sensor.
func (s *Serial) Run(ctx context.Context, sink Sink) error {
	log := s.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"component": "nmea", "port": s.Port})

	port, err := serial.Open(s.Port, s.Mode())
	if err != nil {
		err = fmt.Errorf("%w: open %s: %v", position.ErrSensorUnavailable, s.Port, err)
		sink.OnSensorError(err)
		return err
	}
	defer port.Close()
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	log.Info("reading NMEA")
	err = ReadNMEA(port, sink)
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: %s closed", position.ErrSensorUnavailable, s.Port)
	} else {
		err = fmt.Errorf("%w: %v", position.ErrSensorUnavailable, err)
	}
	log.WithError(err).Error("NMEA device lost")
	sink.OnSensorError(err)
	return err
}
