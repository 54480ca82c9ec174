// Package store persists bus traffic to SQLite: every reading as a row,
// plus the latest identity document per device.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"airsense-go/services/sampler"
)

// Store is the SQLite persistence layer. Use ":memory:" as the path for an
// in-memory database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (creating if needed) the database and applies the schema.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if _, err := db.Exec(`
		PRAGMA foreign_keys = ON;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: configure database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device TEXT NOT NULL,
		kind TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT,
		ts_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		info_json TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_readings_device_ts ON readings(device, ts_ms);
	CREATE INDEX IF NOT EXISTS idx_readings_kind ON readings(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertSample writes one sample's readings in a single transaction.
func (s *Store) InsertSample(device string, sample sampler.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO readings (device, kind, value, unit, ts_ms)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range sample {
		if _, err := stmt.Exec(device, r.Kind, r.Value, r.Unit, r.TsMs); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// UpsertDevice stores the latest identity document for a device.
func (s *Store) UpsertDevice(id string, info sampler.Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO devices (id, info_json, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET info_json = excluded.info_json,
		                              updated_at = CURRENT_TIMESTAMP
	`, id, string(doc))
	return err
}

// Device returns the stored identity document for a device, or nil when the
// device is unknown.
func (s *Store) Device(id string) (sampler.Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc string
	err := s.db.QueryRow(`SELECT info_json FROM devices WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info sampler.Info
	if err := json.Unmarshal([]byte(doc), &info); err != nil {
		return nil, err
	}
	return info, nil
}

// ReadingsSince returns a device's readings with ts_ms >= since, oldest
// first.
func (s *Store) ReadingsSince(device string, since int64) (sampler.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT kind, value, unit, ts_ms FROM readings
		WHERE device = ? AND ts_ms >= ?
		ORDER BY ts_ms, id
	`, device, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out sampler.Sample
	for rows.Next() {
		var r sampler.Reading
		if err := rows.Scan(&r.Kind, &r.Value, &r.Unit, &r.TsMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
