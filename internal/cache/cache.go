// Package cache provides the in-process LRU caches used for user
// profiles, member rosters, and HTTP session state, plus a manager that
// sweeps expired entries on a shared ticker.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cleaner is any cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

type managedCache struct {
	name  string
	cache Cleaner
}

// Manager owns the periodic cleanup of registered caches.
type Manager struct {
	mu          sync.Mutex
	caches      []managedCache
	stopCleanup chan struct{}
	cleanupDone chan struct{}
	started     bool
}

func NewManager() *Manager {
	return &Manager{
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache under a name used in cleanup logs. Register
// before StartCleanup.
func (m *Manager) Register(name string, cache Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, managedCache{name: name, cache: cache})
}

// StartCleanup begins periodic cleanup of all registered caches.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			caches := make([]managedCache, len(m.caches))
			copy(caches, m.caches)
			m.mu.Unlock()

			for _, c := range caches {
				if removed := c.cache.CleanExpired(); removed > 0 {
					slog.Debug("Cache cleanup completed",
						"cache", c.name,
						"entries_removed", removed)
				}
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop halts the cleanup goroutine and waits for it to exit. Safe to
// call even when StartCleanup never ran.
func (m *Manager) Stop() {
	m.mu.Lock()
	started := m.started
	m.started = false
	m.mu.Unlock()

	close(m.stopCleanup)
	if started {
		<-m.cleanupDone
	}
}
