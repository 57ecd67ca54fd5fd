// Package store implements the durable ordered lists backing the station:
// the song queue, the block list, the default playlists and their
// materialised metadata, plus API tokens and the shared config record.
//
// A store is a validated, de-duplicated, ordered slice persisted as one JSON
// file. Every mutation rewrites the whole file through an atomic replace, so
// a crash leaves either the old or the new content, never a torn file.
package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// Policy customises validation, normalisation and duplicate detection for
// one store. Nil fields disable the corresponding behaviour.
type Policy[T any] struct {
	// Validate rejects items that must not enter the store.
	Validate func(T) bool
	// Format normalises an item before it is stored.
	Format func(T) T
	// DedupKey returns the uniqueness key; items whose key matches an
	// existing entry are rejected. Empty-string keys are never deduped.
	DedupKey func(T) string
}

// Store is a mutex-guarded ordered list with JSON file persistence.
type Store[T any] struct {
	mu     sync.Mutex
	path   string
	items  []T
	policy Policy[T]
	logger *slog.Logger
}

// Open loads the store from path. A missing file yields an empty store;
// any other read or decode error is returned.
func Open[T any](path string, policy Policy[T], logger *slog.Logger) (*Store[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store[T]{path: path, policy: policy, logger: logger}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	if policy.Format != nil {
		for i := range items {
			items[i] = policy.Format(items[i])
		}
	}
	s.items = items
	return s, nil
}

// persistLocked rewrites the backing file. Caller holds s.mu. Failures are
// logged and returned; the in-memory view keeps the new state either way.
func (s *Store[T]) persistLocked() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		s.logger.Error("store marshal failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Error("store mkdir failed", slog.String("path", s.path), slog.String("error", err.Error()))
			return err
		}
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("store write failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (s *Store[T]) acceptLocked(item T) (T, bool) {
	var zero T
	if s.policy.Validate != nil && !s.policy.Validate(item) {
		s.logger.Warn("store rejected invalid item", slog.String("path", s.path))
		return zero, false
	}
	if s.policy.DedupKey != nil {
		key := s.policy.DedupKey(item)
		if key != "" {
			for _, existing := range s.items {
				if s.policy.DedupKey(existing) == key {
					s.logger.Warn("store rejected duplicate item", slog.String("path", s.path))
					return zero, false
				}
			}
		}
	}
	if s.policy.Format != nil {
		item = s.policy.Format(item)
	}
	return item, true
}

// Append validates, dedups, formats and appends item. Returns false when
// the item was rejected.
func (s *Store[T]) Append(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	formatted, ok := s.acceptLocked(item)
	if !ok {
		return false
	}
	s.items = append(s.items, formatted)
	_ = s.persistLocked()
	return true
}

// Prepend is Append at index 0.
func (s *Store[T]) Prepend(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	formatted, ok := s.acceptLocked(item)
	if !ok {
		return false
	}
	s.items = append([]T{formatted}, s.items...)
	_ = s.persistLocked()
	return true
}

// AppendMany filters items through validation and dedup and appends the
// survivors in order. Returns the number accepted.
func (s *Store[T]) AppendMany(items []T) int {
	return s.addMany(items, false)
}

// PrependMany is AppendMany at the front, preserving the given order.
func (s *Store[T]) PrependMany(items []T) int {
	return s.addMany(items, true)
}

func (s *Store[T]) addMany(items []T, front bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var accepted []T
	for _, item := range items {
		// Dedup must also see the items accepted earlier in this batch.
		s.items = append(s.items, accepted...)
		formatted, ok := s.acceptLocked(item)
		s.items = s.items[:len(s.items)-len(accepted)]
		if ok {
			accepted = append(accepted, formatted)
		}
	}
	if len(accepted) == 0 {
		return 0
	}
	if front {
		s.items = append(accepted, s.items...)
	} else {
		s.items = append(s.items, accepted...)
	}
	_ = s.persistLocked()
	return len(accepted)
}

// RemoveFront pops the first item.
func (s *Store[T]) RemoveFront() (T, bool) {
	return s.RemoveAt(1)
}

// RemoveBack pops the last item.
func (s *Store[T]) RemoveBack() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeIndexLocked(len(s.items) - 1)
}

// RemoveAt removes the item at the 1-based index. Out-of-range indices
// return false.
func (s *Store[T]) RemoveAt(index int) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeIndexLocked(index - 1)
}

func (s *Store[T]) removeIndexLocked(i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(s.items) {
		return zero, false
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	_ = s.persistLocked()
	return removed, true
}

// RemoveFirstMatch removes the oldest item satisfying pred.
func (s *Store[T]) RemoveFirstMatch(pred func(T) bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range s.items {
		if pred(item) {
			return s.removeIndexLocked(i)
		}
	}
	var zero T
	return zero, false
}

// RemoveLastMatch removes the newest item satisfying pred, scanning from
// the back.
func (s *Store[T]) RemoveLastMatch(pred func(T) bool) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.items) - 1; i >= 0; i-- {
		if pred(s.items[i]) {
			return s.removeIndexLocked(i)
		}
	}
	var zero T
	return zero, false
}

// ReplaceAt swaps the item at the 1-based index without validation or
// dedup; used for in-place status updates.
func (s *Store[T]) ReplaceAt(index int, item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := index - 1
	if i < 0 || i >= len(s.items) {
		return false
	}
	if s.policy.Format != nil {
		item = s.policy.Format(item)
	}
	s.items[i] = item
	_ = s.persistLocked()
	return true
}

// First returns the head without removing it.
func (s *Store[T]) First() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[0], true
}

// Last returns the tail without removing it.
func (s *Store[T]) Last() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	return s.items[len(s.items)-1], true
}

// All returns a copy of the items in order.
func (s *Store[T]) All() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Filter returns a copy of the items satisfying pred, in order.
func (s *Store[T]) Filter(pred func(T) bool) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for _, item := range s.items {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Len returns the item count.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Clear removes all items.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	_ = s.persistLocked()
}
