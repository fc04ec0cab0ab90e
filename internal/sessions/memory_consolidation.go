package sessions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// entryIDLayout matches the HISTORY.md entry_id format: YYYYMMDDHHMMSSffffff.
const entryIDLayout = "20060102150405.000000"

// Consolidator archives unconsolidated session turns into workspace/memory/
// HISTORY.md, under a per-session lock so a background consolidation task
// never races a concurrent /new archive of the same session.
type Consolidator struct {
	store       Store
	memoryDir   string
	locksMu     sync.Mutex
	locks       map[string]*sync.Mutex
	summarize   func(messages []models.Message) string
	topicTagger func(messages []models.Message) []string
}

// NewConsolidator returns a Consolidator writing under memoryDir
// (workspace/memory). summarize and topicTagger may be nil to use the
// built-in defaults.
func NewConsolidator(store Store, memoryDir string, summarize func([]models.Message) string, topicTagger func([]models.Message) []string) *Consolidator {
	if summarize == nil {
		summarize = defaultSummarize
	}
	if topicTagger == nil {
		topicTagger = defaultTopicTags
	}
	return &Consolidator{
		store:       store,
		memoryDir:   memoryDir,
		locks:       map[string]*sync.Mutex{},
		summarize:   summarize,
		topicTagger: topicTagger,
	}
}

func (c *Consolidator) lockFor(key string) *sync.Mutex {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Consolidate archives session.Messages[session.LastConsolidated:] as one
// HISTORY.md entry and advances LastConsolidated. If archiveAll is false and
// there's nothing new to archive, it's a no-op. Safe to call concurrently for
// different session keys; serialized per key.
func (c *Consolidator) Consolidate(key string, archiveAll bool) error {
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	session := c.store.Get(key)
	unconsolidated := session.Messages[min(session.LastConsolidated, len(session.Messages)):]
	if len(unconsolidated) == 0 {
		return nil
	}

	if err := c.appendHistoryEntry(key, session.LastConsolidated, unconsolidated); err != nil {
		return err
	}

	session.LastConsolidated = len(session.Messages)
	if archiveAll {
		session.Clear()
	}
	return c.store.Save(session)
}

func (c *Consolidator) appendHistoryEntry(key string, fromIdx int, turn []models.Message) error {
	if err := os.MkdirAll(c.memoryDir, 0o755); err != nil {
		return fmt.Errorf("sessions: create memory dir: %w", err)
	}

	now := time.Now().UTC()
	entryID := now.Format(entryIDLayout)
	entryID = strings.NewReplacer("-", "", " ", "", ":", "", ".", "").Replace(entryID)

	tags := c.topicTagger(turn)
	body := c.summarize(turn)

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n### entry_id: %s\n", entryID)
	fmt.Fprintf(&sb, "- timestamp: %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "- topic_tags: %s\n", strings.Join(tags, ","))
	fmt.Fprintf(&sb, "- source_turn_range: %s[%d:%d]\n\n", key, fromIdx, fromIdx+len(turn))
	sb.WriteString(body)
	sb.WriteString("\n")

	path := filepath.Join(c.memoryDir, "HISTORY.md")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sessions: open HISTORY.md: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(sb.String())
	return err
}

// defaultSummarize renders each turn message as a "role: content" line,
// trimmed to a single line each.
func defaultSummarize(messages []models.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		line := strings.Join(strings.Fields(m.Content), " ")
		if line == "" {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", m.Role, line)
	}
	return sb.String()
}

// defaultTopicTags extracts a handful of capitalized or quoted-looking
// keywords as a cheap, library-free stand-in for a real summarizer's topic
// extraction. The dispatcher may inject a model-backed tagger instead via
// NewConsolidator.
func defaultTopicTags(messages []models.Message) []string {
	seen := map[string]bool{}
	var tags []string
	for _, m := range messages {
		for _, word := range strings.Fields(m.Content) {
			word = strings.Trim(word, ".,!?:;\"'()")
			if len(word) < 4 || len(word) > 24 {
				continue
			}
			if word[0] < 'A' || word[0] > 'Z' {
				continue
			}
			lower := strings.ToLower(word)
			if seen[lower] {
				continue
			}
			seen[lower] = true
			tags = append(tags, lower)
			if len(tags) >= 5 {
				return tags
			}
		}
	}
	return tags
}
