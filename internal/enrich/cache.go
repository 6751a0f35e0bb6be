package enrich

import (
	"sync"

	"github.com/pauljones0/catalog-crawler/internal/models"
)

// SellerCache is the process-local store of seller records keyed by
// SellerRef.Key(). An enriched record is never replaced.
type SellerCache struct {
	mu      sync.RWMutex
	records map[string]models.SellerRecord
}

func NewSellerCache() *SellerCache {
	return &SellerCache{records: make(map[string]models.SellerRecord)}
}

func (c *SellerCache) Get(key string) (models.SellerRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[key]
	return rec, ok
}

// Put stores rec under key and reports whether it was stored.
func (c *SellerCache) Put(key string, rec models.SellerRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.records[key]; ok && existing.State == models.SellerEnriched {
		return false
	}
	c.records[key] = rec
	return true
}

// MarkExhausted records that enrichment gave up on ref.
func (c *SellerCache) MarkExhausted(key string, ref models.SellerRef) {
	c.Put(key, models.SellerRecord{Ref: ref, State: models.SellerExhausted, ProfileURL: ref.URL})
}

func (c *SellerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Snapshot returns a copy of every record.
func (c *SellerCache) Snapshot() map[string]models.SellerRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.SellerRecord, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}
