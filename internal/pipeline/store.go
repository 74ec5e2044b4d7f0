// Package pipeline hands the output of one tool to the next as its input.
package pipeline

import "sync"

// File is a pipeline handoff. OriginalData keeps the input the output was
// produced from, when the producer has it. Source identifies the producer.
type File struct {
	Data         []byte
	Name         string
	MIMEType     string
	OriginalData []byte
	Source       string
}

// Store is a single-slot, consume-once handoff. The most recent Set wins.
// The store never inspects what it holds; consumers validate MIMEType.
type Store struct {
	mu   sync.Mutex
	file *File
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set overwrites the slot.
func (s *Store) Set(f File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = &f
}

// Consume returns the slot content and clears it. The second of two calls
// reports false.
func (s *Store) Consume() (File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return File{}, false
	}
	f := *s.file
	s.file = nil
	return f, true
}

// Pending reports whether the slot holds an unconsumed file.
func (s *Store) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file != nil
}

// Clear discards any unconsumed file.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = nil
}

// Withdraw discards the unconsumed file if source produced it, and reports
// whether it did. A file from another producer is left alone.
func (s *Store) Withdraw(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil || s.file.Source != source {
		return false
	}
	s.file = nil
	return true
}
