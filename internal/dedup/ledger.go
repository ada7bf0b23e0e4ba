// Package dedup provides a bounded, time-windowed ledger of idempotency keys
// used to suppress broker redeliveries (at-least-once transport).
package dedup

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key    string
	seenAt time.Time
}

// Ledger remembers recently observed idempotency keys. Entries expire after
// a retention window and the ledger is additionally capped, oldest first, so
// memory stays bounded under sustained traffic.
type Ledger struct {
	mu         sync.Mutex
	window     time.Duration
	maxEntries int
	order      *list.List // front = oldest
	byKey      map[string]*list.Element
	now        func() time.Time
}

func NewLedger(window time.Duration, maxEntries int) *Ledger {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Ledger{
		window:     window,
		maxEntries: maxEntries,
		order:      list.New(),
		byKey:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Observe reports whether key is seen for the first time. An empty key is
// never deduplicated and always returns true. The check and the insert are
// atomic, so two concurrent observers of the same key cannot both get true.
func (l *Ledger) Observe(key string) bool {
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictExpired(now)

	if _, seen := l.byKey[key]; seen {
		return false
	}

	elem := l.order.PushBack(entry{key: key, seenAt: now})
	l.byKey[key] = elem

	for l.order.Len() > l.maxEntries {
		l.evictOldest()
	}

	return true
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpired(l.now())
	return l.order.Len()
}

func (l *Ledger) evictExpired(now time.Time) {
	cutoff := now.Add(-l.window)
	for front := l.order.Front(); front != nil; front = l.order.Front() {
		if front.Value.(entry).seenAt.After(cutoff) {
			break
		}
		l.evictOldest()
	}
}

func (l *Ledger) evictOldest() {
	front := l.order.Front()
	if front == nil {
		return
	}
	delete(l.byKey, front.Value.(entry).key)
	l.order.Remove(front)
}
