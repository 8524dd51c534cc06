// Package audit records every successful prediction for operators. The log is
// write-mostly and never feeds back into session state.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zhouzirui/car-advisor/backend/internal/model/car"
)

// Entry is one audited prediction.
type Entry struct {
	ID           int64
	SessionID    string
	Record       car.Record
	PriceForeign float64
	PriceLocal   float64
	Tier         car.Tier
	CreatedAt    time.Time
}

// Recorder persists audit entries.
type Recorder interface {
	RecordPrediction(ctx context.Context, entry Entry) error
}

// Nop discards entries.
type Nop struct{}

// RecordPrediction implements Recorder.
func (Nop) RecordPrediction(context.Context, Entry) error { return nil }

const schema = `
CREATE TABLE IF NOT EXISTS prediction_audit (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	record TEXT NOT NULL,
	price_foreign REAL NOT NULL,
	price_local REAL NOT NULL,
	tier TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_prediction_audit_session ON prediction_audit(session_id);
`

// SQLiteRecorder stores entries in a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init audit schema: %w", err)
	}
	return &SQLiteRecorder{db: db}, nil
}

// RecordPrediction implements Recorder.
func (r *SQLiteRecorder) RecordPrediction(ctx context.Context, entry Entry) error {
	record, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO prediction_audit (session_id, record, price_foreign, price_local, tier, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SessionID, string(record), entry.PriceForeign, entry.PriceLocal, string(entry.Tier), entry.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, record, price_foreign, price_local, tier, created_at FROM prediction_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			record  string
			tier    string
			created int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &record, &e.PriceForeign, &e.PriceLocal, &tier, &created); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(record), &e.Record); err != nil {
			return nil, fmt.Errorf("decode audit record: %w", err)
		}
		e.Tier = car.Tier(tier)
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
