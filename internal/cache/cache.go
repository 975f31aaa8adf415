// Package cache provides the in-memory TTL cache backing the query router's
// SERP result caching. Expired entries are removed lazily on access; when the
// cache grows past its size limit the oldest tenth of entries is evicted.
package cache

import (
	"sort"
	"sync"
	"time"

	"planforge/internal/logging"
)

type entry struct {
	value     interface{}
	createdAt time.Time
	expiresAt time.Time
}

// Manager is a concurrency-safe TTL cache.
type Manager struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

const defaultMaxSize = 10000

// New returns a Manager. maxSize <= 0 takes the default 10000; defaultTTL <= 0
// takes 3 hours.
func New(maxSize int, defaultTTL time.Duration) *Manager {
	if maxSize <= 0 {
		maxSize = defaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = 3 * time.Hour
	}
	return &Manager{
		entries:    make(map[string]entry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached value, or nil and false when absent or expired.
func (m *Manager) Get(key string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key. ttl <= 0 uses the default TTL.
func (m *Manager) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.entries[key] = entry{value: value, createdAt: now, expiresAt: now.Add(ttl)}
	if len(m.entries) > m.maxSize {
		m.evictOldestLocked()
	}
}

// Delete removes key.
func (m *Manager) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Clear drops every entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
}

// Len returns the current entry count, including not-yet-collected expired
// entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictOldestLocked removes the oldest 10% of entries by creation time, at
// least one.
func (m *Manager) evictOldestLocked() {
	n := len(m.entries) / 10
	if n < 1 {
		n = 1
	}
	type aged struct {
		key string
		at  time.Time
	}
	all := make([]aged, 0, len(m.entries))
	for k, e := range m.entries {
		all = append(all, aged{k, e.createdAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	for i := 0; i < n && i < len(all); i++ {
		delete(m.entries, all[i].key)
	}
	logging.Cache("evicted %d oldest entries, %d remain", n, len(m.entries))
}
