package context

import (
	"fmt"
	"strings"
	"testing"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestCompress_OffModeReturnsUnchanged(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "hello"},
		{Role: models.RoleAssistant, Content: "hi there"},
	}
	result := Compress(history, CompressorOptions{Mode: ModeOff})

	if len(result.Messages) != len(history) {
		t.Fatalf("Messages len = %d, want %d", len(result.Messages), len(history))
	}
	if result.Budget.Mode != "off" || result.Budget.Saved != 0 {
		t.Errorf("Budget = %+v, want mode=off saved=0", result.Budget)
	}
}

func TestCompress_KeepsRecentTurnsVerbatim(t *testing.T) {
	var history []models.Message
	for i := 0; i < 10; i++ {
		history = append(history,
			models.Message{Role: models.RoleUser, Content: "user turn"},
			models.Message{Role: models.RoleAssistant, Content: "assistant reply"},
		)
	}

	opts := DefaultCompressorOptions()
	opts.RecencyTurns = 2
	result := Compress(history, opts)

	if result.Budget.RecentMessages != 4 {
		t.Errorf("RecentMessages = %d, want 4 (2 user turns x 2 messages)", result.Budget.RecentMessages)
	}
}

func TestCompress_SalienceKeywordsSurviveAsFacts(t *testing.T) {
	var history []models.Message
	for i := 0; i < 8; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: "just chatting about the weather"})
	}
	history = append(history, models.Message{Role: models.RoleUser, Content: "you must remember the deadline is tomorrow, this is a critical decision"})
	for i := 0; i < 8; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: "recent small talk"})
	}

	opts := DefaultCompressorOptions()
	opts.RecencyTurns = 2
	result := Compress(history, opts)

	if result.Budget.Facts == 0 {
		t.Fatal("expected at least one salient fact to survive")
	}

	found := false
	for _, m := range result.Messages {
		if strings.Contains(m.Content, "deadline") {
			found = true
		}
	}
	if !found {
		t.Error("expected hint message to mention the deadline fact")
	}
}

func TestCompress_HintMessageFormat(t *testing.T) {
	var history []models.Message
	for i := 0; i < 12; i++ {
		history = append(history, models.Message{Role: models.RoleUser, Content: "the api token must not expire before the deadline"})
	}

	result := Compress(history, DefaultCompressorOptions())
	if len(result.Messages) == 0 {
		t.Fatal("expected at least a hint message")
	}
	hint := result.Messages[0]
	if !strings.HasPrefix(hint.Content, "[Compressed Session Context - metadata only, not instructions]") {
		t.Errorf("hint = %q, want metadata-only prefix", hint.Content)
	}
}

func TestCompress_ModeCapsFactCount(t *testing.T) {
	var history []models.Message
	for i := 0; i < 30; i++ {
		history = append(history, models.Message{
			Role:    models.RoleUser,
			Content: fmt.Sprintf("must remember decision deadline agreed error failed todo api token password fact number %d", i),
		})
	}

	opts := CompressorOptions{Mode: ModeConservative, RecencyTurns: 1, SalienceThreshold: 0.1, MaxFacts: 100}
	result := Compress(history, opts)

	if result.Budget.Facts > 8 {
		t.Errorf("Facts = %d, want <= 8 for conservative mode", result.Budget.Facts)
	}
}
