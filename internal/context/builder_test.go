package context

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestBuilder_BuildMessages_Shape(t *testing.T) {
	layers := NewLayerRegistry()
	layers.Register(PromptLayer{Name: "identity", Priority: PriorityIdentity, Render: func() (string, bool) { return "you are the assistant", true }})

	b := NewBuilder(layers)
	history := []models.Message{
		{Role: models.RoleUser, Content: "earlier message"},
		{Role: models.RoleAssistant, Content: "earlier reply"},
	}

	out := b.BuildMessages(history, "what's up", nil, "telegram", "123")

	if out[0].Role != models.RoleSystem || out[0].Content != "you are the assistant" {
		t.Fatalf("out[0] = %+v, want system identity message", out[0])
	}
	if out[1] != history[0] || out[2] != history[1] {
		t.Fatalf("history not preserved in order: %+v", out[1:3])
	}

	metadata := out[3]
	if !strings.Contains(metadata.Content, "[-- BEGIN UNTRUSTED CONTENT: runtime_metadata --]") {
		t.Errorf("metadata message = %q, want untrusted boundary markers", metadata.Content)
	}
	if !strings.Contains(metadata.Content, "channel: telegram") || !strings.Contains(metadata.Content, "chat_id: 123") {
		t.Errorf("metadata message = %q, want channel/chat_id", metadata.Content)
	}

	user := out[len(out)-1]
	if user.Role != models.RoleUser || user.Content != "what's up" {
		t.Errorf("final user message = %+v, want content %q", user, "what's up")
	}
}

func TestBuilder_BuildMessages_AttachesImageMedia(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(imgPath, []byte("fake-png-bytes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	b := NewBuilder(NewLayerRegistry())
	out := b.BuildMessages(nil, "look at this", []models.Media{{Path: imgPath, MimeType: "image/png"}}, "cli", "1")

	user := out[len(out)-1]
	if len(user.Parts) != 2 {
		t.Fatalf("user.Parts = %+v, want 2 parts (text + image)", user.Parts)
	}
	if user.Parts[1].Type != "image" || !strings.HasPrefix(user.Parts[1].ImageURL, "data:image/png;base64,") {
		t.Errorf("image part = %+v, want data: URL", user.Parts[1])
	}
}

func TestBuilder_BuildMessages_DropsMissingOrNonImageMedia(t *testing.T) {
	b := NewBuilder(NewLayerRegistry())

	out := b.BuildMessages(nil, "hi", []models.Media{
		{Path: "/does/not/exist.png", MimeType: "image/png"},
		{Path: "/tmp/whatever.pdf", MimeType: "application/pdf"},
	}, "cli", "1")

	user := out[len(out)-1]
	if len(user.Parts) != 0 {
		t.Errorf("user.Parts = %+v, want none; content falls back to plain string", user.Parts)
	}
	if user.Content != "hi" {
		t.Errorf("user.Content = %q, want %q", user.Content, "hi")
	}
}
