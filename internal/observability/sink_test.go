package observability

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestSink_EmitThenQuery_RedactsAndFilters(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(SinkConfig{Path: filepath.Join(dir, "diagnostic.jsonl"), RotateBytes: 1 << 20, MaxBackups: 3})
	if err != nil {
		t.Fatalf("NewSink() error: %v", err)
	}
	defer sink.Close()

	if err := sink.Emit(models.DiagnosticEvent{EventID: "1", SessionKey: "cli:a", RunID: "r1", ErrorMessage: "token sk-ant-REDACTED"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if err := sink.Emit(models.DiagnosticEvent{EventID: "2", SessionKey: "cli:b", RunID: "r2"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	rows, err := sink.Query("cli:a", "", 10)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(rows) != 1 || rows[0].Event.EventID != "1" {
		t.Fatalf("Query(cli:a) = %+v, want one row with EventID 1", rows)
	}
	if strings.Contains(rows[0].Event.ErrorMessage, "zzzzzzzzzzzzzzzzz") {
		t.Errorf("ErrorMessage = %q, want redacted before persisting", rows[0].Event.ErrorMessage)
	}
}

func TestSink_Query_LimitKeepsMostRecent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(SinkConfig{Path: filepath.Join(dir, "diagnostic.jsonl"), RotateBytes: 1 << 20, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewSink() error: %v", err)
	}
	defer sink.Close()

	for i := 0; i < 5; i++ {
		_ = sink.Emit(models.DiagnosticEvent{EventID: string(rune('a' + i)), SessionKey: "cli:a"})
	}

	rows, err := sink.Query("cli:a", "", 2)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(rows) != 2 || rows[1].Event.EventID != "e" {
		t.Fatalf("Query(limit=2) = %+v, want last 2 rows ending in 'e'", rows)
	}
}

func TestSink_Follow_StreamsNewRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diagnostic.jsonl")
	sink, err := NewSink(SinkConfig{Path: path, RotateBytes: 1 << 20, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewSink() error: %v", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rows, err := sink.Follow(ctx, "cli:follow", "", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Follow() error: %v", err)
	}

	if err := sink.Emit(models.DiagnosticEvent{EventID: "follow-1", SessionKey: "cli:follow"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	select {
	case row := <-rows:
		if row.Event.EventID != "follow-1" {
			t.Errorf("row.Event.EventID = %q, want %q", row.Event.EventID, "follow-1")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Follow to surface the new row")
	}
}
