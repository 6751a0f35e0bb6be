package storage

import (
	"context"
	"sync"
	"time"
)

// HistoryEntry is one append-only snapshot.
type HistoryEntry struct {
	EntityID   string
	Payload    []byte
	RecordedAt time.Time
}

// Summary is the current row kept per listing.
type Summary struct {
	EntityID  string
	Title     string
	Brand     string
	URL       string
	UpdatedAt time.Time
}

// MemoryStore keeps history and summaries in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	history   []HistoryEntry
	summaries map[string]Summary
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{summaries: make(map[string]Summary), now: time.Now}
}

func (m *MemoryStore) Record(_ context.Context, entityID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, HistoryEntry{
		EntityID:   entityID,
		Payload:    append([]byte(nil), payload...),
		RecordedAt: m.now(),
	})
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, entityID, title, brand, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[entityID] = Summary{EntityID: entityID, Title: title, Brand: brand, URL: url, UpdatedAt: m.now()}
	return nil
}

// TrimHistory drops the oldest entries beyond maxEntries.
func (m *MemoryStore) TrimHistory(_ context.Context, maxEntries int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxEntries < 0 || len(m.history) <= maxEntries {
		return nil
	}
	m.history = append([]HistoryEntry(nil), m.history[len(m.history)-maxEntries:]...)
	return nil
}

func (m *MemoryStore) History() []HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]HistoryEntry(nil), m.history...)
}

func (m *MemoryStore) Summary(entityID string) (Summary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[entityID]
	return s, ok
}

func (m *MemoryStore) Close() error { return nil }
