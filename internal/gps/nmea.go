package gps

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"sea-radar.klederson.com/internal/position"
)

// Horizontal error per unit of HDOP, a typical consumer receiver UERE.
const hdopMeters = 5.0

var (
	ErrChecksum = errors.New("nmea checksum mismatch")
	ErrSentence = errors.New("malformed nmea sentence")
)

// sentence is one checksummed NMEA 0183 line split into fields.
type sentence struct {
	Talker string
	Type   string
	Fields []string
}

func parseSentence(line string) (sentence, error) {
	line = strings.TrimSpace(line)
	if len(line) < 7 || line[0] != '$' {
		return sentence{}, ErrSentence
	}
	star := strings.LastIndexByte(line, '*')
	if star < 0 || star+3 != len(line) {
		return sentence{}, ErrSentence
	}
	want, err := strconv.ParseUint(line[star+1:], 16, 8)
	if err != nil {
		return sentence{}, ErrSentence
	}
	var sum byte
	for i := 1; i < star; i++ {
		sum ^= line[i]
	}
	if byte(want) != sum {
		return sentence{}, fmt.Errorf("%w: %02X != %02X", ErrChecksum, sum, want)
	}

	fields := strings.Split(line[1:star], ",")
	head := fields[0]
	if len(head) != 5 {
		return sentence{}, ErrSentence
	}
	return sentence{Talker: head[:2], Type: head[2:], Fields: fields[1:]}, nil
}

// checksum returns the NMEA checksum of body (without $ and *).
func checksum(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("%02X", sum)
}

// parseCoord decodes ddmm.mmmm / dddmm.mmmm with a hemisphere letter.
func parseCoord(value, hemi string) (float64, error) {
	if value == "" {
		return 0, ErrSentence
	}
	dot := strings.IndexByte(value, '.')
	if dot < 0 {
		dot = len(value)
	}
	if dot < 3 {
		return 0, ErrSentence
	}
	deg, err := strconv.Atoi(value[:dot-2])
	if err != nil {
		return 0, ErrSentence
	}
	mins, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil || mins >= 60 {
		return 0, ErrSentence
	}
	v := float64(deg) + mins/60
	switch hemi {
	case "N", "E":
		return v, nil
	case "S", "W":
		return -v, nil
	default:
		return 0, ErrSentence
	}
}

func optionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseRMC decodes a recommended minimum sentence. ok is false for a void
// (status V) fix.
func parseRMC(f []string) (s position.Sample, ok bool, err error) {
	if len(f) < 9 {
		return s, false, ErrSentence
	}
	if f[1] != "A" {
		return s, false, nil
	}
	if s.Lat, err = parseCoord(f[2], f[3]); err != nil {
		return s, false, err
	}
	if s.Lng, err = parseCoord(f[4], f[5]); err != nil {
		return s, false, err
	}
	if knots := optionalFloat(f[6]); knots != nil {
		s.Speed = position.Float(*knots * knotsToMetersPerSec)
	}
	s.Heading = optionalFloat(f[7])
	if t, err := time.Parse("020106 150405", f[8]+" "+trimFraction(f[0])); err == nil {
		s.Timestamp = t.Add(fraction(f[0]))
	}
	return s, true, nil
}

// parseGGA returns the HDOP of a fix data sentence, zero without a fix.
func parseGGA(f []string) (float64, error) {
	if len(f) < 8 {
		return 0, ErrSentence
	}
	if q, err := strconv.Atoi(f[5]); err != nil || q == 0 {
		return 0, nil
	}
	hdop := optionalFloat(f[7])
	if hdop == nil {
		return 0, nil
	}
	return *hdop, nil
}

func trimFraction(hms string) string {
	if i := strings.IndexByte(hms, '.'); i >= 0 {
		return hms[:i]
	}
	return hms
}

func fraction(hms string) time.Duration {
	i := strings.IndexByte(hms, '.')
	if i < 0 {
		return 0
	}
	f, err := strconv.ParseFloat("0"+hms[i:], 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second)).Round(time.Millisecond)
}

// ReadNMEA decodes sentences from r until it fails or ends, passing each
// valid RMC fix to sink. The latest GGA HDOP provides the accuracy hint.
func ReadNMEA(r io.Reader, sink Sink) error {
	var hdop float64
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		sen, err := parseSentence(scanner.Text())
		if err != nil {
			continue
		}
		switch sen.Type {
		case "GGA":
			if h, err := parseGGA(sen.Fields); err == nil {
				hdop = h
			}
		case "RMC":
			s, ok, err := parseRMC(sen.Fields)
			if err != nil || !ok {
				continue
			}
			s.AccuracyMeters = hdop * hdopMeters
			sink.OnRawPosition(s)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
