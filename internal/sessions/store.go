// Package sessions stores per-chat conversation state keyed by
// "channel:chat_id". Store is the single point of truth the dispatcher reads
// and writes under its turn lock; every accessor returns or accepts a deep
// clone so callers can never mutate shared state through an aliased slice.
package sessions

import (
	"github.com/haasonsaas/loom/pkg/models"
)

// Store is the persistence interface the dispatcher depends on. MemoryStore
// satisfies it for tests and single-process runs; FileStore adds on-disk
// snapshotting for durability across restarts.
type Store interface {
	// Get returns a clone of the session for key, creating an empty one if
	// absent.
	Get(key string) *models.Session
	// Save overwrites the stored session for s.Key.
	Save(s *models.Session) error
	// Clear truncates the session's history and resets its consolidation
	// cursor.
	Clear(key string) error
}

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Messages = append([]models.Message(nil), s.Messages...)
	return &clone
}

// TruncateLongToolResults mutates tool messages longer than maxChars,
// replacing the tail with a truncation marker; used before persisting a turn
// so session history on disk stays bounded.
func TruncateLongToolResults(messages []models.Message, maxChars int) []models.Message {
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		if m.Role == models.RoleTool && len(m.Content) > maxChars {
			m.Content = m.Content[:maxChars] + "… (truncated)"
		}
		out[i] = m
	}
	return out
}

// RedactImageParts replaces inline base64 image URLs in user message parts
// with a placeholder before persisting, so on-disk session history doesn't
// balloon with attachment bytes.
func RedactImageParts(messages []models.Message) []models.Message {
	out := make([]models.Message, len(messages))
	for i, m := range messages {
		if len(m.Parts) == 0 {
			out[i] = m
			continue
		}
		parts := make([]models.MessagePart, len(m.Parts))
		for j, p := range m.Parts {
			if p.Type == "image" && p.ImageURL != "" {
				p.ImageURL = "[image omitted from history]"
			}
			parts[j] = p
		}
		m.Parts = parts
		out[i] = m
	}
	return out
}
