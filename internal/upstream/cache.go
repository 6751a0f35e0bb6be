package upstream

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a response cache backend. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (Payload, bool, error)
	Set(ctx context.Context, key string, value Payload, ttl time.Duration) error
}

// CacheKey hashes the endpoint and its sorted parameters. The API key is
// excluded so keys are stable across credentials and never leak them.
func CacheKey(endpoint Endpoint, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "api_key" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(endpoint))
	for _, k := range keys {
		b.WriteByte('&')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	value     Payload
	expiresAt time.Time
}

// MemoryStore is a bounded in-process LRU with per-entry expiry.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, memoryEntry]
	now   func() time.Time
}

func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("lru.New: %w", err)
	}
	return &MemoryStore{cache: c, now: time.Now}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Payload, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		m.cache.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value Payload, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Add on an existing key replaces the value and refreshes its recency.
	m.cache.Add(key, memoryEntry{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}

func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
