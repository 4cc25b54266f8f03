// Package deduplication implements the optional run-scoped dedupe pass: a
// size-bounded LRU cache keyed by a record's identity, letting the pump
// drop a record's rows once the hierarchy driver has produced them, when
// its main-row id was already seen (e.g. a replayed Kafka partition),
// before they reach the writer. Adapted from the teacher's
// deduplication manager, trimmed of its background cleanup goroutine --
// a single run is short-lived enough that a size-bounded evict-on-insert
// policy is sufficient.
package deduplication

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Config tunes the dedupe cache.
type Config struct {
	Enabled      bool `yaml:"enabled"`
	MaxCacheSize int  `yaml:"max_cache_size"`
}

// DefaultConfig mirrors the teacher's documented default cache size.
func DefaultConfig() Config {
	return Config{MaxCacheSize: 100_000}
}

// Stats summarizes dedupe activity.
type Stats struct {
	Seen      int64
	Duplicates int64
	Evictions int64
}

// Manager is an LRU set of previously seen keys.
type Manager struct {
	cfg   Config
	mu    sync.Mutex
	index map[uint64]*list.Element
	order *list.List
	stats Stats
}

// New builds a Manager. A disabled Manager's SeenBefore always reports false,
// letting the pump skip the lookup cost entirely via the Enabled check.
func New(cfg Config) *Manager {
	if cfg.MaxCacheSize <= 0 {
		cfg.MaxCacheSize = DefaultConfig().MaxCacheSize
	}
	return &Manager{cfg: cfg, index: map[uint64]*list.Element{}, order: list.New()}
}

// Enabled reports whether deduplication is switched on.
func (m *Manager) Enabled() bool { return m.cfg.Enabled }

// Key hashes an identity value into the cache's key space.
func Key(identity string) uint64 {
	return xxhash.Sum64String(identity)
}

// SeenBefore reports whether key has been observed already during this
// run, recording it if not.
func (m *Manager) SeenBefore(key uint64) bool {
	if !m.cfg.Enabled {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Seen++

	if elem, ok := m.index[key]; ok {
		m.order.MoveToFront(elem)
		m.stats.Duplicates++
		return true
	}

	elem := m.order.PushFront(key)
	m.index[key] = elem

	if m.order.Len() > m.cfg.MaxCacheSize {
		oldest := m.order.Back()
		if oldest != nil {
			m.order.Remove(oldest)
			delete(m.index, oldest.Value.(uint64))
			m.stats.Evictions++
		}
	}

	return false
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
