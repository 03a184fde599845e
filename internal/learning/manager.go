package learning

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Jay-Tejada/malunita/internal/storage"
	"github.com/Jay-Tejada/malunita/internal/task"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	prefs    task.Preferences
	cachedAt time.Time
}

// Manager provides cached read access to per-user learned preferences. The
// interactive pipeline reads preferences on every capture; the cache keeps
// that off the hot path while the aggregator's wholesale upserts make a
// slightly stale read harmless.
type Manager struct {
	store PreferenceStore
	clock Clock
	ttl   time.Duration

	mu     sync.RWMutex
	cached map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store PreferenceStore) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock and TTL (for testing).
func NewManagerWithClock(store PreferenceStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		clock:  clock,
		ttl:    ttl,
		cached: make(map[string]cacheEntry),
	}
}

// Get returns the user's learned preferences, or the neutral defaults when
// aggregation has never run for them.
func (m *Manager) Get(userID string) (task.Preferences, error) {
	m.mu.RLock()
	if e, ok := m.cached[userID]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		m.mu.RUnlock()
		return e.prefs, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.cached[userID]; ok && m.clock.Now().Before(e.cachedAt.Add(m.ttl)) {
		return e.prefs, nil
	}

	prefs, err := m.store.LoadPreferences(userID)
	if errors.Is(err, storage.ErrNotFound) {
		prefs = task.DefaultPreferences()
	} else if err != nil {
		return task.Preferences{}, fmt.Errorf("loading preferences: %w", err)
	}

	m.cached[userID] = cacheEntry{prefs: prefs, cachedAt: m.clock.Now()}
	return prefs, nil
}

// Invalidate drops the cached entry for a user, forcing the next Get to
// read storage. Called after a recompute.
func (m *Manager) Invalidate(userID string) {
	m.mu.Lock()
	delete(m.cached, userID)
	m.mu.Unlock()
}
