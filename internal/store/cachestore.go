package store

import (
	"context"
	"strings"
	"sync"

	"github.com/citypulse/backend/internal/models"
)

// CacheStore is the injected backend the unified cache keeps entries in.
// Load returns (nil, nil) for a missing key. Save replaces the entry as a
// unit; a reader never observes records from two refresh generations.
type CacheStore interface {
	Load(ctx context.Context, location string, st models.SourceType) (*models.CacheEntry, error)
	Save(ctx context.Context, entry models.CacheEntry) error
	Delete(ctx context.Context, location string, st models.SourceType) error
}

func cacheKey(location string, st models.SourceType) string {
	return strings.ToLower(strings.TrimSpace(location)) + "|" + string(st)
}

// MemoryStore is the in-process CacheStore: a mutex-guarded map of whole
// entries. It is the authoritative copy for a running API and the backend
// tests inject.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// NewMemoryStore creates an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.CacheEntry)}
}

// Load returns a copy of the stored entry, or nil when absent.
func (m *MemoryStore) Load(_ context.Context, location string, st models.SourceType) (*models.CacheEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[cacheKey(location, st)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Save replaces the entry for the key atomically.
func (m *MemoryStore) Save(_ context.Context, entry models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[cacheKey(entry.Location, entry.SourceType)] = entry
	return nil
}

// Delete drops the entry for the key.
func (m *MemoryStore) Delete(_ context.Context, location string, st models.SourceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, cacheKey(location, st))
	return nil
}

// ESStore layers Elasticsearch snapshot persistence behind a MemoryStore:
// reads hit memory first and fall back to the snapshot index (warm start
// after a restart), writes go to both. Snapshot write failures degrade to
// memory-only; the cache's correctness does not depend on persistence.
type ESStore struct {
	mem    *MemoryStore
	client *Client
}

// NewESStore builds the snapshot-backed cache store.
func NewESStore(client *Client) *ESStore {
	return &ESStore{mem: NewMemoryStore(), client: client}
}

func (s *ESStore) Load(ctx context.Context, location string, st models.SourceType) (*models.CacheEntry, error) {
	if entry, err := s.mem.Load(ctx, location, st); err == nil && entry != nil {
		return entry, nil
	}

	entry, err := s.client.LoadSnapshot(ctx, location, st)
	if err != nil || entry == nil {
		return nil, err
	}
	_ = s.mem.Save(ctx, *entry)
	return entry, nil
}

func (s *ESStore) Save(ctx context.Context, entry models.CacheEntry) error {
	if err := s.mem.Save(ctx, entry); err != nil {
		return err
	}
	if err := s.client.SaveSnapshot(ctx, entry); err != nil {
		s.client.log.Warn("cache snapshot write failed", "location", entry.Location, "source", entry.SourceType, "err", err)
	}
	return nil
}

func (s *ESStore) Delete(ctx context.Context, location string, st models.SourceType) error {
	if err := s.mem.Delete(ctx, location, st); err != nil {
		return err
	}
	if err := s.client.DeleteSnapshot(ctx, location, st); err != nil {
		s.client.log.Warn("cache snapshot delete failed", "location", location, "source", st, "err", err)
	}
	return nil
}
