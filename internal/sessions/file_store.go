package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// FileStore is a Store that snapshots every Save to one JSON file per session
// key under a directory, read back lazily on first Get after process
// restart.
type FileStore struct {
	mu       sync.RWMutex
	dir      string
	sessions map[string]*models.Session
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create dir: %w", err)
	}
	return &FileStore{dir: dir, sessions: map[string]*models.Session{}}, nil
}

// snapshotPath maps a session key ("channel:chat_id") to its on-disk file,
// escaping path separators so arbitrary chat IDs can't traverse dir.
func (f *FileStore) snapshotPath(key string) string {
	escaped := strings.NewReplacer("/", "_", "\\", "_").Replace(key)
	return filepath.Join(f.dir, escaped+".json")
}

func (f *FileStore) loadFromDisk(key string) (*models.Session, bool) {
	data, err := os.ReadFile(f.snapshotPath(key))
	if err != nil {
		return nil, false
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false
	}
	return &s, true
}

func (f *FileStore) Get(key string) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[key]; ok {
		return cloneSession(s)
	}
	if s, ok := f.loadFromDisk(key); ok {
		f.sessions[key] = s
		return cloneSession(s)
	}
	s := &models.Session{Key: key, UpdatedAt: time.Now()}
	f.sessions[key] = s
	return cloneSession(s)
}

func (f *FileStore) Save(s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clone := cloneSession(s)
	clone.UpdatedAt = time.Now()
	f.sessions[clone.Key] = clone

	data, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: marshal: %w", err)
	}
	path := f.snapshotPath(clone.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("sessions: write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func (f *FileStore) Clear(key string) error {
	s := f.Get(key)
	s.Clear()
	return f.Save(s)
}
