// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package history records device and setpoint changes in SQLite. Each
// batch of changes stores a CBOR snapshot of the full state alongside.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// TIME_FORMAT is how timestamps are stored, always in UTC
const TIME_FORMAT = "2006-01-02 15:04:05.000"

// Event kinds
const (
	KIND_LED         = "led"
	KIND_SETPOINT    = "setpoint"
	KIND_TEMPERATURE = "temperature"
)

// Event is one recorded change
type Event struct {
	ID         int64
	Timestamp  time.Time
	Point      string
	Previous   string
	New        string
	Kind       string
	SnapshotID int64
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    point_name TEXT NOT NULL,
    previous_value TEXT,
    new_value TEXT,
    event_type TEXT NOT NULL,
    snapshot_id INTEGER REFERENCES snapshots(id)
);
CREATE INDEX IF NOT EXISTS events_timestamp ON events(timestamp);`

// Store is an open history database
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// Open opens or creates the database at path
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema in %s: %w", path, err)
	}
	return &Store{db: db, log: log.WithField("component", "history")}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores a batch of events and the snapshot they were taken from in
// one transaction. The events' ids and snapshot id are filled in.
func (s *Store) Record(ctx context.Context, events []Event, snap Snapshot) error {
	blob, err := cbor.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	taken := time.Unix(0, snap.Taken).UTC().Format(TIME_FORMAT)
	res, err := tx.ExecContext(ctx, "INSERT INTO snapshots(timestamp, data) VALUES(?, ?)", taken, blob)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	snapID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events(timestamp, point_name, previous_value, new_value, event_type, snapshot_id) VALUES(?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		e := &events[i]
		res, err := stmt.ExecContext(ctx, e.Timestamp.UTC().Format(TIME_FORMAT), e.Point, e.Previous, e.New, e.Kind, snapID)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.Point, err)
		}
		e.ID, _ = res.LastInsertId()
		e.SnapshotID = snapID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first. point filters by point
// name when not empty.
func (s *Store) Recent(ctx context.Context, limit int, point string) ([]Event, error) {
	query := "SELECT id, timestamp, point_name, previous_value, new_value, event_type, snapshot_id FROM events"
	var args []any
	if point != "" {
		query += " WHERE point_name = ?"
		args = append(args, point)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var ts string
		var prev, next sql.NullString
		var snapID sql.NullInt64
		if err := rows.Scan(&e.ID, &ts, &e.Point, &prev, &next, &e.Kind, &snapID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp, err = time.ParseInLocation(TIME_FORMAT, ts, time.UTC)
		if err != nil {
			s.log.WithError(err).WithField("id", e.ID).Warn("Bad event timestamp")
		}
		e.Previous, e.New, e.SnapshotID = prev.String, next.String, snapID.Int64
		out = append(out, e)
	}
	return out, rows.Err()
}

// Snapshot loads one stored snapshot
func (s *Store) Snapshot(ctx context.Context, id int64) (Snapshot, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE id = ?", id).Scan(&blob)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %d: %w", id, err)
	}
	var snap Snapshot
	if err := cbor.Unmarshal(blob, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot %d: %w", id, err)
	}
	return snap, nil
}
