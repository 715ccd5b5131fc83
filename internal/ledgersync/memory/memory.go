// Package memory provides an in-process export target, used in tests and
// when no Google Sheet is configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"budsjett/internal/core"
)

type Store struct {
	mu      sync.Mutex
	items   []core.LedgerEntry
	failing bool
}

func New() *Store {
	return &Store{}
}

// Append stores the entry and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, e core.LedgerEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", errors.New("export target unavailable")
	}
	s.items = append(s.items, e)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Entries returns a copy of everything appended so far.
func (s *Store) Entries() []core.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.LedgerEntry(nil), s.items...)
}

// SetFailing makes subsequent appends fail, for exercising error paths.
func (s *Store) SetFailing(failing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = failing
}
