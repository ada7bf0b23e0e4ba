// Package snapshot caches the latest decoded event per query category and
// exposes the synchronous read facade used by status/balance/stats queries.
package snapshot

import (
	"sync"
	"time"
)

// Snapshot is the last-known decoded payload for one query category.
// Replaced wholesale on every matching event, never merged.
type Snapshot struct {
	UpdatedAt time.Time              `json:"updated_at"`
	Fields    map[string]interface{} `json:"fields"`
}

// Store holds the per-category snapshots. Writers are router calls, readers
// are query handlers; reads never see a partially written snapshot.
type Store struct {
	mu      sync.RWMutex
	balance *Snapshot
	stats   *Snapshot
}

func NewStore() *Store {
	return &Store{}
}

// SetBalance replaces the balance snapshot.
func (s *Store) SetBalance(updatedAt time.Time, fields map[string]interface{}) {
	s.set(&s.balance, updatedAt, fields)
}

// SetStats replaces the session-stats snapshot.
func (s *Store) SetStats(updatedAt time.Time, fields map[string]interface{}) {
	s.set(&s.stats, updatedAt, fields)
}

// Balance returns the latest balance snapshot; ok is false before the first
// balance update arrives.
func (s *Store) Balance() (Snapshot, bool) {
	return s.get(&s.balance)
}

// Stats returns the latest session-stats snapshot; ok is false before the
// first stats event arrives.
func (s *Store) Stats() (Snapshot, bool) {
	return s.get(&s.stats)
}

func (s *Store) set(slot **Snapshot, updatedAt time.Time, fields map[string]interface{}) {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	s.mu.Lock()
	*slot = &Snapshot{UpdatedAt: updatedAt, Fields: copied}
	s.mu.Unlock()
}

func (s *Store) get(slot **Snapshot) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if *slot == nil {
		return Snapshot{}, false
	}
	return **slot, true
}
