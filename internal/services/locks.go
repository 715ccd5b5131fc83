package services

import (
	"sync"

	"budsjett/internal/core"
)

// monthLocks serializes the staging and commit operations per (user, month).
// The zero value is ready to use. Entries are never evicted; the key space is
// bounded by active users times months touched.
type monthLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (m *monthLocks) lock(userID string, ym core.YearMonth) func() {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*sync.Mutex)
	}
	key := userID + "|" + ym.String()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
