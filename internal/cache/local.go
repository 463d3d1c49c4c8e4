package cache

import (
	"container/list"
	"sync"
	"time"
)

// LocalLevel is the in-process fallback level. It is bounded: when full,
// the oldest-inserted entry is evicted first. Every write to the tiered
// cache also lands here, so it stays current relative to this process
// even when the shared level is unreachable.
type LocalLevel struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = oldest inserted
}

type localEntry struct {
	key        string
	data       []byte
	expiresAt  time.Time
	insertedAt time.Time
}

// NewLocalLevel builds a local level holding at most maxEntries entries.
func NewLocalLevel(maxEntries int) *LocalLevel {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &LocalLevel{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

// Get returns the payload for key if present and not expired. Expired
// entries are removed on access.
func (l *LocalLevel) Get(key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	elem, ok := l.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*localEntry)
	if time.Now().After(entry.expiresAt) {
		l.removeLocked(elem)
		return nil, false
	}
	return entry.data, true
}

// Set writes a payload with a TTL, evicting the oldest-inserted entries
// when over capacity. Re-setting an existing key counts as a fresh
// insertion.
func (l *LocalLevel) Set(key string, data []byte, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if elem, ok := l.entries[key]; ok {
		l.removeLocked(elem)
	}

	entry := &localEntry{
		key:        key,
		data:       data,
		expiresAt:  time.Now().Add(ttl),
		insertedAt: time.Now(),
	}
	l.entries[key] = l.order.PushBack(entry)

	for l.order.Len() > l.maxEntries {
		l.removeLocked(l.order.Front())
	}
}

// Delete removes key if present.
func (l *LocalLevel) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if elem, ok := l.entries[key]; ok {
		l.removeLocked(elem)
	}
}

// DeleteFunc removes every entry whose key satisfies match and returns
// the number removed.
func (l *LocalLevel) DeleteFunc(match func(key string) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for elem := l.order.Front(); elem != nil; {
		next := elem.Next()
		if match(elem.Value.(*localEntry).key) {
			l.removeLocked(elem)
			removed++
		}
		elem = next
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (l *LocalLevel) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Keys returns a snapshot of the current key set.
func (l *LocalLevel) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, l.order.Len())
	for elem := l.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*localEntry).key)
	}
	return keys
}

func (l *LocalLevel) removeLocked(elem *list.Element) {
	entry := l.order.Remove(elem).(*localEntry)
	delete(l.entries, entry.key)
}
