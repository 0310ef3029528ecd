package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"slotkeeper/internal/models"
)

type lockEntry struct {
	sem  chan struct{}
	refs int
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is the single-process counterpart of RedisStore.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	settingsMu      sync.RWMutex
	settings        *models.BookingSettings
	settingsExpires time.Time
	settingsTTL     time.Duration

	rateMu     sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryStore(settingsTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		locks:       make(map[string]*lockEntry),
		rateLimits:  make(map[string]*rateLimitEntry),
		settingsTTL: settingsTTL,
	}
}

func (m *MemoryStore) GetSettings(_ context.Context) (*models.BookingSettings, error) {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	if m.settingsTTL > 0 && time.Now().After(m.settingsExpires) {
		return nil, nil
	}
	return m.settings.Clone(), nil
}

func (m *MemoryStore) SetSettings(_ context.Context, settings *models.BookingSettings) error {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	m.settings = settings.Clone()
	m.settingsExpires = time.Now().Add(m.settingsTTL)
	return nil
}

func (m *MemoryStore) InvalidateSettings(_ context.Context) error {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	m.settings = nil
	return nil
}

// Acquire blocks until key is free or ctx is done. ttl is ignored: holders
// live in this process and always release.
func (m *MemoryStore) Acquire(ctx context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	entry, ok := m.locks[key]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		m.unref(key, entry)
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			m.unref(key, entry)
		})
	}, nil
}

func (m *MemoryStore) unref(key string, entry *lockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, key)
	}
}

func (m *MemoryStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.rateMu.Lock()
	defer m.rateMu.Unlock()

	now := time.Now()
	entry, ok := m.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		m.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
