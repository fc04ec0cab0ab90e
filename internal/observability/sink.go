package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/haasonsaas/loom/pkg/models"
)

// Row is one decoded line from the sink.
type Row struct {
	Event models.DiagnosticEvent
	Raw   json.RawMessage
}

// SinkConfig configures a Sink's on-disk JSONL file and rotation policy.
type SinkConfig struct {
	Path        string
	RotateBytes int // lumberjack MaxSize is MB; converted internally
	MaxBackups  int
}

// Sink is an append-only JSONL diagnostic event log with size-based
// rotation, matching SPEC_FULL.md §4.9. Emit redacts before writing;
// rotation is delegated to lumberjack so numbered backups and the
// rotate_bytes/max_backups shape match exactly what the spec asks for.
type Sink struct {
	mu     sync.Mutex
	path   string
	writer *lumberjack.Logger
}

// NewSink opens (creating if needed) the JSONL file at cfg.Path.
func NewSink(cfg SinkConfig) (*Sink, error) {
	maxSizeMB := 1
	if cfg.RotateBytes > 0 {
		maxSizeMB = cfg.RotateBytes / (1024 * 1024)
		if maxSizeMB < 1 {
			maxSizeMB = 1
		}
	}
	return &Sink{
		path: cfg.Path,
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   false,
		},
	}, nil
}

// Emit redacts event and appends it as one JSON line, rotating first if the
// write would exceed the configured size.
func (s *Sink) Emit(event models.DiagnosticEvent) error {
	redacted := RedactEvent(event)
	line, err := json.Marshal(redacted)
	if err != nil {
		return fmt.Errorf("observability: marshal event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.writer.Write(line)
	return err
}

// Close flushes and closes the underlying rotated-log writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

// backupPaths returns every rotated backup file path for the sink, oldest
// first, followed by the active file path last.
func (s *Sink) backupPaths() []string {
	backups, _ := lumberjackBackups(s.path)
	return append(backups, s.path)
}

// Query scans oldest backup to newest active file, keeping the last limit
// rows matching sessionKey/runID (either filter empty matches any value).
func (s *Sink) Query(sessionKey, runID string, limit int) ([]Row, error) {
	var matches []Row
	for _, path := range s.backupPaths() {
		rows, err := readRows(path)
		if err != nil {
			continue // rotated/missing files are skipped, not fatal
		}
		for _, row := range rows {
			if !matchesFilter(row.Event, sessionKey, runID) {
				continue
			}
			matches = append(matches, row)
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches, nil
}

func matchesFilter(event models.DiagnosticEvent, sessionKey, runID string) bool {
	if sessionKey != "" && event.SessionKey != sessionKey {
		return false
	}
	if runID != "" && event.RunID != runID {
		return false
	}
	return true
}

func readRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event models.DiagnosticEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		raw := append(json.RawMessage(nil), line...)
		rows = append(rows, Row{Event: event, Raw: raw})
	}
	return rows, scanner.Err()
}

// Follow tails the active sink file, surviving rotation (reopens on
// inode/device change, detected via fsnotify) and truncation (rewinds to
// start when the file shrinks). pollInterval is a debounce/fallback used
// when no fsnotify event arrives, for filesystems without inotify support.
func (s *Sink) Follow(ctx context.Context, sessionKey, runID string, pollInterval time.Duration) (<-chan Row, error) {
	out := make(chan Row)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("observability: create watcher: %w", err)
	}
	_ = watcher.Add(s.path) // best-effort; file may not exist yet

	go func() {
		defer close(out)
		defer watcher.Close()

		var offset int64
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		scan := func() {
			f, err := os.Open(s.path)
			if err != nil {
				return
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return
			}
			if info.Size() < offset {
				offset = 0 // truncated; rewind
			}
			if _, err := f.Seek(offset, 0); err != nil {
				return
			}

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				offset += int64(len(line)) + 1
				if len(line) == 0 {
					continue
				}
				var event models.DiagnosticEvent
				if err := json.Unmarshal(line, &event); err != nil {
					continue
				}
				if !matchesFilter(event, sessionKey, runID) {
					continue
				}
				raw := append(json.RawMessage(nil), line...)
				select {
				case out <- Row{Event: event, Raw: raw}:
				case <-ctx.Done():
					return
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				scan()
			case ev, ok := <-watcher.Events:
				if !ok {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					_ = watcher.Add(s.path) // reopen watch after rotation
					offset = 0
					scan()
				}
			case <-watcher.Errors:
			}
		}
	}()

	return out, nil
}

// lumberjackBackups returns rotated backup file paths for the given active
// log path, oldest first. lumberjack names backups
// "<name>-<timestamp>.<ext>" alongside the active file; this module only
// needs the directory listing, not lumberjack's internal naming guarantees,
// so it resolves backups defensively by directory scan rather than
// depending on unexported lumberjack internals.
func lumberjackBackups(activePath string) ([]string, error) {
	dir := filepath.Dir(activePath)
	base := filepath.Base(activePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var backups []string
	for _, e := range entries {
		name := e.Name()
		if name == base {
			continue
		}
		if strings.HasPrefix(name, stem+"-") {
			backups = append(backups, filepath.Join(dir, name))
		}
	}
	sort.Strings(backups)
	return backups, nil
}
