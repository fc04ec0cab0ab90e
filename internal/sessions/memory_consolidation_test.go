package sessions

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestConsolidator_Consolidate_AppendsHistoryEntry(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	session := store.Get("telegram:42")
	session.Append(models.Message{Role: models.RoleUser, Content: "What is the Deadline for Renewal"})
	session.Append(models.Message{Role: models.RoleAssistant, Content: "The deadline is next Friday"})
	_ = store.Save(session)

	c := NewConsolidator(store, dir, nil, nil)
	if err := c.Consolidate("telegram:42", false); err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "HISTORY.md"))
	if err != nil {
		t.Fatalf("ReadFile(HISTORY.md) error: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "### entry_id:") {
		t.Errorf("HISTORY.md missing entry_id header: %q", content)
	}
	if !strings.Contains(content, "topic_tags:") || !strings.Contains(content, "source_turn_range:") {
		t.Errorf("HISTORY.md missing metadata fields: %q", content)
	}
	if !strings.Contains(content, "deadline is next Friday") {
		t.Errorf("HISTORY.md missing turn body: %q", content)
	}

	updated := store.Get("telegram:42")
	if updated.LastConsolidated != 2 {
		t.Errorf("LastConsolidated = %d, want 2", updated.LastConsolidated)
	}
	if len(updated.Messages) != 2 {
		t.Errorf("archiveAll=false should not clear messages, got %d", len(updated.Messages))
	}
}

func TestConsolidator_Consolidate_ArchiveAllClearsSession(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	session := store.Get("cli:u1")
	session.Append(models.Message{Role: models.RoleUser, Content: "hello"})
	_ = store.Save(session)

	c := NewConsolidator(store, dir, nil, nil)
	if err := c.Consolidate("cli:u1", true); err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}

	cleared := store.Get("cli:u1")
	if len(cleared.Messages) != 0 || cleared.LastConsolidated != 0 {
		t.Errorf("after archiveAll, session = %+v, want empty", cleared)
	}
}

func TestConsolidator_Consolidate_NoOpWhenNothingNew(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryStore()
	_ = store.Get("cli:u2")

	c := NewConsolidator(store, dir, nil, nil)
	if err := c.Consolidate("cli:u2", false); err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "HISTORY.md")); !os.IsNotExist(err) {
		t.Error("expected HISTORY.md not to be created when there's nothing to archive")
	}
}
