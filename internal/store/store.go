// Package store persists hub state across restarts: the active chime
// selection, a packet-stats history snapshot table, and arbitrary key/value
// settings (mirroring /data/config.json's overrides). It is a direct
// descendant of the teacher's internal/store package: modernc.org/sqlite
// (pure-Go driver, no cgo), idempotent CREATE TABLE IF NOT EXISTS migration,
// slog logging throughout.
//
// The teacher's own store carries chat messages and reactions tables, which
// have no home in this spec (no chat feature) — this package repurposes the
// same Store abstraction and migration style for packet_stats_history and
// settings instead of dropping the modernc.org/sqlite dependency outright.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("[store] not found")

// Store wraps a SQLite-backed hub database.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the database directory if needed and applies migrations.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[store] mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("[store] open: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS packet_stats_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			seq_min INTEGER NOT NULL,
			seq_max INTEGER NOT NULL,
			packet_count INTEGER NOT NULL,
			gaps INTEGER NOT NULL,
			duplicates INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_packet_stats_history_device
			ON packet_stats_history(device_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("[store] migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// GetSetting returns a setting's value and whether it existed.
func (s *Store) GetSetting(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("[store] get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a setting.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("[store] set setting %q: %w", key, err)
	}
	return nil
}

// ActiveChime persists/reads the current active chime name (backs the
// /data/active_chime contract, kept in SQLite alongside everything else
// rather than as a bare text file — the teacher's store is the natural home
// for small persisted scalars it already manages this way for server_name).
func (s *Store) ActiveChime() (string, bool, error) {
	return s.GetSetting("active_chime")
}

func (s *Store) SetActiveChime(name string) error {
	return s.SetSetting("active_chime", name)
}

// InsertPacketStatsSnapshot records one point-in-time snapshot of a
// sender's tracked stats, for historical diagnostics beyond the live
// in-memory Tracker.
func (s *Store) InsertPacketStatsSnapshot(deviceID string, seqMin, seqMax uint32, packetCount, gaps, duplicates uint64, recordedAtUnixMs int64) error {
	_, err := s.db.Exec(
		`INSERT INTO packet_stats_history
			(device_id, seq_min, seq_max, packet_count, gaps, duplicates, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID, seqMin, seqMax, packetCount, gaps, duplicates, recordedAtUnixMs)
	if err != nil {
		return fmt.Errorf("[store] insert packet stats snapshot: %w", err)
	}
	return nil
}

// PacketStatsHistory is one historical row.
type PacketStatsHistory struct {
	DeviceID    string
	SeqMin      uint32
	SeqMax      uint32
	PacketCount uint64
	Gaps        uint64
	Duplicates  uint64
	RecordedAt  int64
}

// PacketStatsHistoryFor returns the most recent snapshots for a device,
// newest first, bounded by limit.
func (s *Store) PacketStatsHistoryFor(deviceID string, limit int) ([]PacketStatsHistory, error) {
	rows, err := s.db.Query(
		`SELECT device_id, seq_min, seq_max, packet_count, gaps, duplicates, recorded_at
		 FROM packet_stats_history WHERE device_id = ? ORDER BY recorded_at DESC LIMIT ?`,
		deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("[store] query packet stats history: %w", err)
	}
	defer rows.Close()

	var out []PacketStatsHistory
	for rows.Next() {
		var h PacketStatsHistory
		if err := rows.Scan(&h.DeviceID, &h.SeqMin, &h.SeqMax, &h.PacketCount, &h.Gaps, &h.Duplicates, &h.RecordedAt); err != nil {
			return nil, fmt.Errorf("[store] scan packet stats history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Optimize runs SQLite's PRAGMA optimize, matching the teacher's periodic
// maintenance ticker in server/main.go.
func (s *Store) Optimize() error {
	_, err := s.db.Exec(`PRAGMA optimize`)
	if err != nil {
		return fmt.Errorf("[store] optimize: %w", err)
	}
	return nil
}
