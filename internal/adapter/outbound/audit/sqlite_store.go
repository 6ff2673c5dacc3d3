package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteAuditStore persists the dispatch trace to a queryable SQLite
// file instead of append-only JSON Lines. Use it when the audit
// configuration names a "sqlite://" output: offline tooling can then
// run ad-hoc SQL over a session's trace (e.g. "show every dropped
// frame for interface zwlr_data_control_device_v1") instead of
// grepping JSON Lines.
type SQLiteAuditStore struct {
	db     *sql.DB
	mu     sync.Mutex
	cache  *auditCache
	closed bool
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS dispatch_records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	interface     TEXT NOT NULL,
	opcode        INTEGER NOT NULL,
	message_name  TEXT NOT NULL,
	direction     TEXT NOT NULL,
	receiver_id   INTEGER NOT NULL,
	outcome       TEXT NOT NULL,
	detail        TEXT
);
CREATE INDEX IF NOT EXISTS idx_dispatch_records_session ON dispatch_records(session_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_records_outcome ON dispatch_records(outcome);
`

// NewSQLiteAuditStore opens (creating if needed) a SQLite database at
// path and ensures the dispatch_records table exists. cacheSize bounds
// the in-memory ring buffer GetRecent serves from, same as
// FileAuditStore, so readers get a fast recent-history view without
// hitting the database.
func NewSQLiteAuditStore(path string, cacheSize int) (*SQLiteAuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite audit database: %w", err)
	}
	// A single-writer cooperative event loop drives Append; the
	// underlying SQLite driver does not benefit from a connection pool
	// here and concurrent writers would just serialize on the database
	// file lock anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dispatch_records schema: %w", err)
	}

	if cacheSize <= 0 {
		cacheSize = 1000
	}

	s := &SQLiteAuditStore{db: db, cache: newAuditCache(cacheSize)}
	if err := s.populateCache(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("populate cache from existing database: %w", err)
	}
	return s, nil
}

func (s *SQLiteAuditStore) populateCache() error {
	rows, err := s.db.Query(
		`SELECT timestamp, session_id, interface, opcode, message_name, direction, receiver_id, outcome, detail
		 FROM dispatch_records ORDER BY id DESC LIMIT ?`, s.cache.size)
	if err != nil {
		return err
	}
	defer rows.Close()

	var recent []DispatchRecord
	for rows.Next() {
		var rec DispatchRecord
		var ts string
		var detail sql.NullString
		if err := rows.Scan(&ts, &rec.SessionID, &rec.Interface, &rec.Opcode, &rec.MessageName,
			&rec.Direction, &rec.ReceiverID, &rec.Outcome, &detail); err != nil {
			return err
		}
		rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return err
		}
		rec.Detail = detail.String
		recent = append(recent, rec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// recent is newest-first (DESC); add oldest-first so the cache's
	// own ring-buffer ordering comes out newest-first on Recent.
	for i := len(recent) - 1; i >= 0; i-- {
		s.cache.Add(recent[i])
	}
	return nil
}

// Append implements Store.
func (s *SQLiteAuditStore) Append(ctx context.Context, records ...DispatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dispatch_records
		 (timestamp, session_id, interface, opcode, message_name, direction, receiver_id, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.SessionID,
			rec.Interface, rec.Opcode, rec.MessageName, rec.Direction, rec.ReceiverID, rec.Outcome, rec.Detail); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert dispatch record: %w", err)
		}
		s.cache.Add(rec)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Flush is a no-op: every Append already commits its own transaction.
func (s *SQLiteAuditStore) Flush(_ context.Context) error {
	return nil
}

// GetRecent returns the last n records from the in-memory cache,
// newest first.
func (s *SQLiteAuditStore) GetRecent(n int) []DispatchRecord {
	return s.cache.Recent(n)
}

// Close closes the underlying database handle.
func (s *SQLiteAuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Compile-time interface verification.
var _ Store = (*SQLiteAuditStore)(nil)
