// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlite implements store.AuditStore on SQLite and registers itself
// as the "sqlite" backend.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/cloak/internal/store"
	cloakerr "github.com/sigil-dev/cloak/pkg/errors"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "audit_logs.db"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func init() {
	store.RegisterBackend("sqlite", func(path string) (store.AuditStore, error) {
		return NewAuditStore(path)
	})
}

// AuditStore implements store.AuditStore backed by a single SQLite database.
type AuditStore struct {
	db *sql.DB
}

var _ store.AuditStore = (*AuditStore)(nil)

// NewAuditStore opens (or creates) the database at dbPath and initialises
// the audit_logs table.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	if dbPath == "" {
		dbPath = DefaultPath
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "opening audit db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "pinging audit db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "migrating audit db")
	}

	return &AuditStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_logs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	request_id  TEXT NOT NULL DEFAULT '',
	timestamp   TEXT NOT NULL,
	type        TEXT NOT NULL,
	stage       TEXT NOT NULL,
	message     TEXT NOT NULL,
	metadata    TEXT,
	duration_ms INTEGER,
	status      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_request ON audit_logs(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_type ON audit_logs(type);
`
	_, err := db.Exec(ddl)
	return err
}

func (s *AuditStore) Append(ctx context.Context, entry *store.AuditEntry) error {
	if entry == nil || entry.ID == "" {
		return cloakerr.New(cloakerr.CodeStoreInvalidInput, "audit entry requires an id")
	}

	var metadata sql.NullString
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return cloakerr.Wrapf(err, cloakerr.CodeStoreInvalidInput, "marshalling audit metadata")
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	var duration sql.NullInt64
	if entry.Duration > 0 {
		duration = sql.NullInt64{Int64: entry.Duration.Milliseconds(), Valid: true}
	}

	const q = `INSERT INTO audit_logs (id, request_id, timestamp, type, stage, message, metadata, duration_ms, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		entry.ID, entry.RequestID, formatTime(entry.Timestamp), entry.Kind, entry.Stage,
		entry.Message, metadata, duration, entry.Status,
	)
	if err != nil {
		return cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "appending audit entry %s", entry.ID)
	}
	return nil
}

// Query returns matching entries in reverse insertion order.
func (s *AuditStore) Query(ctx context.Context, filter store.AuditFilter) ([]*store.AuditEntry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, request_id, timestamp, type, stage, message, metadata, duration_ms, status FROM audit_logs`)

	var conditions []string
	var args []any

	if filter.RequestID != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, filter.Kind)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY seq DESC LIMIT ? OFFSET ?")
	args = append(args, filter.EffectiveLimit(), filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "querying audit log")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var entries []*store.AuditEntry
	for rows.Next() {
		var e store.AuditEntry
		var ts string
		var metadata sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(
			&e.ID, &e.RequestID, &ts, &e.Kind, &e.Stage,
			&e.Message, &metadata, &duration, &e.Status,
		); err != nil {
			return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "scanning audit row")
		}
		e.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "parsing audit entry %s timestamp", e.ID)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "unmarshalling audit metadata")
			}
		}
		if duration.Valid {
			e.Duration = time.Duration(duration.Int64) * time.Millisecond
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, cloakerr.Wrapf(err, cloakerr.CodeStoreDatabaseFailure, "iterating audit entries")
	}
	return entries, nil
}

// Close closes the underlying database connection.
func (s *AuditStore) Close() error { return s.db.Close() }

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}
