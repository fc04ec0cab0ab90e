package sessions

import (
	"sync"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// MemoryStore is an in-process Store backed by a map; state does not survive
// a restart. Used for tests, the CLI channel, and local runs without a
// --sink-path-style durability requirement.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]*models.Session{}}
}

func (m *MemoryStore) Get(key string) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return cloneSession(s)
	}
	s := &models.Session{Key: key, UpdatedAt: time.Now()}
	m.sessions[key] = s
	return cloneSession(s)
}

func (m *MemoryStore) Save(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneSession(s)
	clone.UpdatedAt = time.Now()
	m.sessions[clone.Key] = clone
	return nil
}

func (m *MemoryStore) Clear(key string) error {
	s := m.Get(key)
	s.Clear()
	return m.Save(s)
}
