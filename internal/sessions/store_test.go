package sessions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestMemoryStore_GetCreatesEmptySession(t *testing.T) {
	s := NewMemoryStore()
	session := s.Get("telegram:123")
	if session.Key != "telegram:123" || len(session.Messages) != 0 {
		t.Errorf("Get() = %+v, want empty session for new key", session)
	}
}

func TestMemoryStore_SaveThenGetRoundTrips(t *testing.T) {
	s := NewMemoryStore()
	session := s.Get("cli:user1")
	session.Append(models.Message{Role: models.RoleUser, Content: "hello"})
	if err := s.Save(session); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got := s.Get("cli:user1")
	if len(got.Messages) != 1 || got.Messages[0].Content != "hello" {
		t.Errorf("Get() after Save = %+v, want one message 'hello'", got.Messages)
	}
}

func TestMemoryStore_GetReturnsCloneNotAlias(t *testing.T) {
	s := NewMemoryStore()
	session := s.Get("cli:user2")
	session.Append(models.Message{Role: models.RoleUser, Content: "mutate me"})

	fresh := s.Get("cli:user2")
	if len(fresh.Messages) != 0 {
		t.Errorf("mutating a Get() result leaked into the store: %+v", fresh.Messages)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	s := NewMemoryStore()
	session := s.Get("cli:user3")
	session.Append(models.Message{Role: models.RoleUser, Content: "x"})
	session.LastConsolidated = 1
	_ = s.Save(session)

	if err := s.Clear("cli:user3"); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	got := s.Get("cli:user3")
	if len(got.Messages) != 0 || got.LastConsolidated != 0 {
		t.Errorf("Clear() left %+v, want empty messages and LastConsolidated=0", got)
	}
}

func TestFileStore_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	session := s1.Get("slack:c1")
	session.Append(models.Message{Role: models.RoleAssistant, Content: "persisted"})
	if err := s1.Save(session); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() reload error: %v", err)
	}
	got := s2.Get("slack:c1")
	if len(got.Messages) != 1 || got.Messages[0].Content != "persisted" {
		t.Errorf("reloaded session = %+v, want one persisted message", got.Messages)
	}
}

func TestFileStore_SnapshotPathEscapesSeparators(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	session := s.Get("telegram:../../etc/passwd")
	session.Append(models.Message{Role: models.RoleUser, Content: "x"})
	if err := s.Save(session); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	for _, e := range entries {
		if filepath.Dir(e.Name()) != "." {
			t.Errorf("snapshot file escaped dir: %s", e.Name())
		}
	}
}

func TestTruncateLongToolResults(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	messages := []models.Message{
		{Role: models.RoleTool, Content: string(long)},
		{Role: models.RoleUser, Content: "short"},
	}
	out := TruncateLongToolResults(messages, 500)
	if len(out[0].Content) != 500+len("… (truncated)") {
		t.Errorf("tool message length = %d, want truncated to 500 + marker", len(out[0].Content))
	}
	if out[1].Content != "short" {
		t.Errorf("non-tool message was modified: %q", out[1].Content)
	}
}

func TestRedactImageParts(t *testing.T) {
	messages := []models.Message{
		{Role: models.RoleUser, Parts: []models.MessagePart{
			{Type: "text", Text: "look at this"},
			{Type: "image", ImageURL: "data:image/png;base64,AAAA"},
		}},
	}
	out := RedactImageParts(messages)
	if out[0].Parts[1].ImageURL != "[image omitted from history]" {
		t.Errorf("ImageURL = %q, want redaction placeholder", out[0].Parts[1].ImageURL)
	}
	if out[0].Parts[0].Text != "look at this" {
		t.Errorf("text part was altered: %q", out[0].Parts[0].Text)
	}
}
