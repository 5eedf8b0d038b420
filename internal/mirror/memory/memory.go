// Package memory provides an in-memory statement mirror, used by tests and
// by worker runs with no Google credentials configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"conti/internal/mirror"
)

type Store struct {
	mu      sync.Mutex
	entries []mirror.Entry
}

func New() *Store {
	return &Store{}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (s *Store) AppendEntry(_ context.Context, e mirror.Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return fmt.Sprintf("mem:%d", len(s.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []mirror.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mirror.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
