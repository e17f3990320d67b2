// Package db provides the SQLite-backed session store: sessions,
// manual corrections, calibrations, and computed stiffness results.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/tendon.report/internal/tendon"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the session database at path. Schema setup is
// handled by MigrateUp; callers should run it before first use.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Serialise writers; the store follows single-writer discipline anyway.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return &DB{sqlDB}, nil
}

// SessionRecord is one persisted session row.
type SessionRecord struct {
	ID        string
	VideoName string
	CreatedAt time.Time
}

// CreateSession persists a new session row.
func (db *DB) CreateSession(id, videoName string) error {
	_, err := db.Exec(
		"INSERT INTO sessions (id, video_name) VALUES (?, ?)",
		id, videoName,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", id, err)
	}
	return nil
}

// GetSession loads one session row.
func (db *DB) GetSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(
		"SELECT id, video_name, created_at FROM sessions WHERE id = ?", id,
	)
	var rec SessionRecord
	var created string
	if err := row.Scan(&rec.ID, &rec.VideoName, &created); err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	// SQLite stores CURRENT_TIMESTAMP as UTC text.
	rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
	return &rec, nil
}

// UpsertCorrection stores one manual override, replacing any previous
// value for the same (session, frame, site) key.
func (db *DB) UpsertCorrection(sessionID string, c tendon.Correction) error {
	_, err := db.Exec(`
		INSERT INTO corrections (session_id, frame_index, site, x, y)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, frame_index, site)
		DO UPDATE SET x = excluded.x, y = excluded.y
	`, sessionID, c.FrameIndex, string(c.Site), c.X, c.Y)
	if err != nil {
		return fmt.Errorf("failed to upsert correction (%d, %s): %w", c.FrameIndex, c.Site, err)
	}
	return nil
}

// ListCorrections returns all overrides stored for a session.
func (db *DB) ListCorrections(sessionID string) ([]tendon.Correction, error) {
	rows, err := db.Query(`
		SELECT frame_index, site, x, y FROM corrections
		WHERE session_id = ? ORDER BY frame_index, site
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list corrections: %w", err)
	}
	defer rows.Close()

	var out []tendon.Correction
	for rows.Next() {
		var c tendon.Correction
		var site string
		if err := rows.Scan(&c.FrameIndex, &site, &c.X, &c.Y); err != nil {
			return nil, err
		}
		c.Site = tendon.Site(site)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCorrections removes every override for a session. Backs the
// correction reset operation; total and irreversible.
func (db *DB) DeleteCorrections(sessionID string) error {
	if _, err := db.Exec("DELETE FROM corrections WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete corrections for session %s: %w", sessionID, err)
	}
	return nil
}

// SaveCalibration stores (or replaces) the session calibration.
func (db *DB) SaveCalibration(sessionID string, cal tendon.Calibration) error {
	_, err := db.Exec(`
		INSERT INTO calibrations (session_id, factor_px_per_mm, baseline_length_mm)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id)
		DO UPDATE SET factor_px_per_mm = excluded.factor_px_per_mm,
		              baseline_length_mm = excluded.baseline_length_mm
	`, sessionID, cal.FactorPxPerMM, cal.BaselineLengthMM)
	if err != nil {
		return fmt.Errorf("failed to save calibration for session %s: %w", sessionID, err)
	}
	return nil
}

// GetCalibration loads the session calibration. Returns sql.ErrNoRows
// wrapped when none has been stored.
func (db *DB) GetCalibration(sessionID string) (tendon.Calibration, error) {
	row := db.QueryRow(`
		SELECT factor_px_per_mm, baseline_length_mm FROM calibrations
		WHERE session_id = ?
	`, sessionID)
	var cal tendon.Calibration
	if err := row.Scan(&cal.FactorPxPerMM, &cal.BaselineLengthMM); err != nil {
		return tendon.Calibration{}, fmt.Errorf("failed to load calibration for session %s: %w", sessionID, err)
	}
	return cal, nil
}

// RecordStiffnessResult appends a computed result for audit. Results are
// never updated in place; recomputation inserts a new row.
func (db *DB) RecordStiffnessResult(sessionID string, r tendon.StiffnessResult) error {
	_, err := db.Exec(`
		INSERT INTO stiffness_results
			(session_id, stiffness_n_per_mm, normalized_stiffness_n, tf_max, paired_samples)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, r.StiffnessNPerMM, r.NormalizedStiffnessN, r.TFMax, r.Samples)
	if err != nil {
		return fmt.Errorf("failed to record stiffness result: %w", err)
	}
	return nil
}
