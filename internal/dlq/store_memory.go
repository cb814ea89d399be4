package dlq

import (
	"context"
	"fmt"
	"sync"
)

const defaultMemoryCap = 1000

// MemoryStore is a bounded in-process DLQ store. It serves as the fallback
// when the Redis backend is unreachable and as the primary store in
// development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	cap     int
	entries map[string][]*Entry // per group, most recent first
}

// NewMemoryStore creates a memory store capping each group at capPerGroup
// entries (oldest dropped).
func NewMemoryStore(capPerGroup int) *MemoryStore {
	if capPerGroup <= 0 {
		capPerGroup = defaultMemoryCap
	}
	return &MemoryStore{
		cap:     capPerGroup,
		entries: make(map[string][]*Entry),
	}
}

// Push prepends an entry to the group's list.
func (s *MemoryStore) Push(_ context.Context, group string, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]*Entry{entry}, s.entries[group]...)
	if len(list) > s.cap {
		list = list[:s.cap]
	}
	s.entries[group] = list
	return nil
}

// List returns up to limit entries, most recent first.
func (s *MemoryStore) List(_ context.Context, group string, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[group]
	if limit > len(list) {
		limit = len(list)
	}
	out := make([]*Entry, limit)
	copy(out, list[:limit])
	return out, nil
}

// Update replaces the entry at index.
func (s *MemoryStore) Update(_ context.Context, group string, index int, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[group]
	if index < 0 || index >= len(list) {
		return fmt.Errorf("dlq: index %d out of range for group %q", index, group)
	}
	list[index] = entry
	return nil
}

// Len returns the number of entries for a group.
func (s *MemoryStore) Len(_ context.Context, group string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries[group])), nil
}

// Groups returns all groups holding at least one entry.
func (s *MemoryStore) Groups(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]string, 0, len(s.entries))
	for group, list := range s.entries {
		if len(list) > 0 {
			groups = append(groups, group)
		}
	}
	return groups, nil
}

// Purge removes all entries for a group.
func (s *MemoryStore) Purge(_ context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, group)
	return nil
}
