package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/runsheet/core/schedule/runlog"
)

// RunLogStore persists schedule run records.
type RunLogStore struct {
	db *sql.DB
}

// NewRunLogStore opens or creates the database at path and ensures schema.
func NewRunLogStore(path string) (*RunLogStore, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS schedule_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ts INTEGER,
        day TEXT,
        trigger TEXT,
        record TEXT
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &RunLogStore{db: db}, nil
}

// Append writes the record to the database.
func (s *RunLogStore) Append(ctx context.Context, rec runlog.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule_runs (ts, day, trigger, record) VALUES (?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), string(rec.Day), string(rec.Trigger), string(b))
	return err
}

// Query returns records matching q, oldest first.
func (s *RunLogStore) Query(ctx context.Context, q runlog.Query) ([]runlog.Record, error) {
	query := `SELECT record FROM schedule_runs WHERE 1=1`
	var args []any
	if !q.Start.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, q.End.UnixNano())
	}
	if q.Day != "" {
		query += ` AND day = ?`
		args = append(args, string(q.Day))
	}
	if q.Trigger != "" {
		query += ` AND trigger = ?`
		args = append(args, string(q.Trigger))
	}
	query += ` ORDER BY ts, id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []runlog.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r runlog.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the underlying database.
func (s *RunLogStore) Close() error {
	return s.db.Close()
}
