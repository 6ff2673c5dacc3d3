package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// StdoutAuditStore writes each DispatchRecord as a JSON line to an
// underlying writer (os.Stdout in production), buffered and flushed
// after every Append. It is the "audit.output: stdout" sink (§6), the
// simplest of the three: no rotation, no retention, a cache for
// GetRecent identical to the one FileAuditStore and SQLiteAuditStore
// use so all three sinks answer recent-trace queries the same way.
type StdoutAuditStore struct {
	mu     sync.Mutex
	w      *bufio.Writer
	cache  *auditCache
	closed bool
}

// NewStdoutAuditStore wraps w (typically os.Stdout) as an audit.Store.
// cacheSize bounds GetRecent's ring buffer; 0 uses a default of 1000.
func NewStdoutAuditStore(w io.Writer, cacheSize int) *StdoutAuditStore {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &StdoutAuditStore{w: bufio.NewWriter(w), cache: newAuditCache(cacheSize)}
}

// Append implements Store.
func (s *StdoutAuditStore) Append(_ context.Context, records ...DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("audit: stdout store closed")
	}
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("audit: marshal record: %w", err)
		}
		if _, err := s.w.Write(line); err != nil {
			return fmt.Errorf("audit: write record: %w", err)
		}
		if _, err := s.w.Write([]byte("\n")); err != nil {
			return fmt.Errorf("audit: write record: %w", err)
		}
		s.cache.Add(rec)
	}
	return s.w.Flush()
}

// Flush implements Store. Append already flushes the underlying
// writer after every call, so this is a no-op kept for interface
// symmetry with the rotating/batched sinks.
func (s *StdoutAuditStore) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.w.Flush()
}

// GetRecent implements Store.
func (s *StdoutAuditStore) GetRecent(n int) []DispatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Recent(n)
}

// Close implements Store.
func (s *StdoutAuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Flush()
}
