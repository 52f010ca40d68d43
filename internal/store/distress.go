package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sea-radar.klederson.com/internal/safety"
)

// RecordDistress inserts a distress record. Each activation is written once;
// a duplicate id is an error.
func (s *Store) RecordDistress(ctx context.Context, rec safety.DistressRecord) error {
	var lat, lng sql.NullFloat64
	if rec.Located {
		lat = sql.NullFloat64{Float64: rec.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Lng, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distress (id, user_id, lat, lng, type, status, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, lat, lng, rec.Type, rec.Status, string(rec.Source), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert distress %s: %w", rec.ID, err)
	}
	s.log.WithField("id", rec.ID).Info("distress recorded")
	return nil
}

// ResolveDistress marks an active record resolved.
func (s *Store) ResolveDistress(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE distress SET status = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		safety.DistressStatusResolved, at.UnixMilli(), id, safety.DistressStatusActive,
	)
	if err != nil {
		return fmt.Errorf("resolve distress %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("resolve distress %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListDistress returns the most recent records first. limit <= 0 means all.
func (s *Store) ListDistress(ctx context.Context, limit int) ([]safety.DistressRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, lat, lng, type, status, source, created_at, resolved_at
		FROM distress
		ORDER BY created_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list distress: %w", err)
	}
	defer rows.Close()

	var out []safety.DistressRecord
	for rows.Next() {
		var (
			rec      safety.DistressRecord
			lat, lng sql.NullFloat64
			source   string
			created  int64
			resolved sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &lat, &lng, &rec.Type, &rec.Status, &source, &created, &resolved); err != nil {
			return nil, err
		}
		if lat.Valid && lng.Valid {
			rec.Lat, rec.Lng, rec.Located = lat.Float64, lng.Float64, true
		}
		rec.Source = safety.Source(source)
		rec.CreatedAt = time.UnixMilli(created).UTC()
		if resolved.Valid {
			rec.ResolvedAt = time.UnixMilli(resolved.Int64).UTC()
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
