// Package history keeps a capped log of completed outputs.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry records one completed output.
type Entry struct {
	Name      string    `json:"name"`
	Tool      string    `json:"tool"`
	Size      int       `json:"size"`
	Handle    string    `json:"handle,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is an append-only list capped at a maximum length; the oldest entries
// are evicted first. With an empty path it lives only in memory.
type Log struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []Entry
}

// Open loads the log at path, creating it lazily on first append.
func Open(path string, max int) (*Log, error) {
	if max <= 0 {
		return nil, fmt.Errorf("history size must be positive, got %d", max)
	}
	l := &Log{path: path, max: max}
	if path == "" {
		return l, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.entries); err != nil {
			return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
		}
	}
	l.trim()
	return l, nil
}

// Append adds e, evicting the oldest entries beyond the cap, and persists.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.entries = append(l.entries, e)
	l.trim()
	return l.save()
}

// SetMax changes the cap, evicting immediately if it shrank.
func (l *Log) SetMax(max int) error {
	if max <= 0 {
		return fmt.Errorf("history size must be positive, got %d", max)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = max
	l.trim()
	return l.save()
}

// Entries returns the log, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Clear empties the log.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return l.save()
}

func (l *Log) trim() {
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}
}

// save writes through a temp file so a crash never leaves half a log.
func (l *Log) save() error {
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace history: %w", err)
	}
	return nil
}
