package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"sea-radar.klederson.com/internal/geo"
	"sea-radar.klederson.com/internal/position"
)

// Track summarises one recording session.
type Track struct {
	ID             string
	StartedAt      time.Time
	EndedAt        time.Time // zero while recording
	Points         int
	DistanceMeters float64
}

// TrackPoint is one stored fix.
type TrackPoint struct {
	Lat, Lng       float64
	AccuracyMeters float64
	Speed          *float64
	Heading        *float64
	CapturedAt     time.Time
}

type trackRecorder struct {
	mu      sync.Mutex
	current string
	last    geo.Point
	hasLast bool
}

// SetRecording starts a new track when turned on and closes the open track
// when turned off. Repeating the current state is a no-op.
func (s *Store) SetRecording(on bool) error {
	s.tracks.mu.Lock()
	defer s.tracks.mu.Unlock()

	now := time.Now()
	switch {
	case on && s.tracks.current == "":
		id := uuid.NewString()
		if _, err := s.db.Exec(`INSERT INTO tracks (id, started_at) VALUES (?, ?)`, id, now.UnixMilli()); err != nil {
			return fmt.Errorf("start track: %w", err)
		}
		s.tracks.current = id
		s.tracks.hasLast = false
		s.log.WithField("track", id).Info("track recording started")
	case !on && s.tracks.current != "":
		id := s.tracks.current
		s.tracks.current = ""
		if _, err := s.db.Exec(`UPDATE tracks SET ended_at = ? WHERE id = ?`, now.UnixMilli(), id); err != nil {
			return fmt.Errorf("end track: %w", err)
		}
		s.log.WithField("track", id).Info("track recording stopped")
	}
	return nil
}

// Recording reports whether a track is open.
func (s *Store) Recording() bool {
	s.tracks.mu.Lock()
	defer s.tracks.mu.Unlock()
	return s.tracks.current != ""
}

// AppendTrackPoint stores an accepted position in the open track. It returns
// false without error when no track is being recorded.
func (s *Store) AppendTrackPoint(ctx context.Context, p position.Position) (bool, error) {
	s.tracks.mu.Lock()
	defer s.tracks.mu.Unlock()

	id := s.tracks.current
	if id == "" {
		return false, nil
	}
	step := 0.0
	if s.tracks.hasLast {
		step = geo.DistanceMeters(s.tracks.last, p.Point())
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO track_points (track_id, lat, lng, accuracy_m, speed, heading, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.Lat, p.Lng, p.AccuracyMeters, nullFloat(p.SpeedMetersPerSec), nullFloat(p.HeadingDegrees), p.CapturedAt.UnixMilli(),
	); err != nil {
		return false, fmt.Errorf("insert track point: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tracks SET points = points + 1, distance_m = distance_m + ? WHERE id = ?`,
		step, id,
	); err != nil {
		return false, fmt.Errorf("update track: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	s.tracks.last = p.Point()
	s.tracks.hasLast = true
	return true, nil
}

// ListTracks returns all tracks, newest first.
func (s *Store) ListTracks(ctx context.Context) ([]Track, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, points, distance_m
		FROM tracks
		ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	defer rows.Close()

	var out []Track
	for rows.Next() {
		var (
			t       Track
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &started, &ended, &t.Points, &t.DistanceMeters); err != nil {
			return nil, err
		}
		t.StartedAt = time.UnixMilli(started).UTC()
		if ended.Valid {
			t.EndedAt = time.UnixMilli(ended.Int64).UTC()
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TrackPoints returns the fixes of one track in capture order.
func (s *Store) TrackPoints(ctx context.Context, trackID string) ([]TrackPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lat, lng, accuracy_m, speed, heading, captured_at
		FROM track_points
		WHERE track_id = ?
		ORDER BY captured_at, rowid`, trackID)
	if err != nil {
		return nil, fmt.Errorf("track points: %w", err)
	}
	defer rows.Close()

	var out []TrackPoint
	for rows.Next() {
		var (
			p              TrackPoint
			speed, heading sql.NullFloat64
			captured       int64
		)
		if err := rows.Scan(&p.Lat, &p.Lng, &p.AccuracyMeters, &speed, &heading, &captured); err != nil {
			return nil, err
		}
		if speed.Valid {
			p.Speed = position.Float(speed.Float64)
		}
		if heading.Valid {
			p.Heading = position.Float(heading.Float64)
		}
		p.CapturedAt = time.UnixMilli(captured).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
