package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStdoutAuditStore_AppendWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	store := NewStdoutAuditStore(&buf, 0)

	rec := makeRecord(time.Now(), "sync")
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	var got DispatchRecord
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal written line: %v", err)
	}
	if got.MessageName != "sync" {
		t.Errorf("MessageName = %q, want %q", got.MessageName, "sync")
	}
}

func TestStdoutAuditStore_GetRecentReturnsCached(t *testing.T) {
	var buf bytes.Buffer
	store := NewStdoutAuditStore(&buf, 10)

	for i := 0; i < 3; i++ {
		if err := store.Append(context.Background(), makeRecord(time.Now(), "sync")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recent := store.GetRecent(2)
	if len(recent) != 2 {
		t.Fatalf("GetRecent(2) returned %d records, want 2", len(recent))
	}
}

func TestStdoutAuditStore_AppendAfterCloseFails(t *testing.T) {
	var buf bytes.Buffer
	store := NewStdoutAuditStore(&buf, 0)

	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Append(context.Background(), makeRecord(time.Now(), "sync")); err == nil {
		t.Error("expected Append after Close to fail")
	}
}
