package structure

import (
	"sync"
	"time"

	"github.com/agenthands/argus/internal/core/model"
)

// Cache holds the most recent structural scores. Scores are replaced wholesale, never patched.
type Cache struct {
	mu         sync.RWMutex
	scores     map[string]model.StructuralScore
	version    uint64
	computedAt time.Time
	ready      bool
}

func NewCache() *Cache {
	return &Cache{}
}

// Store replaces the cached scores with a set computed on graph version.
func (c *Cache) Store(version uint64, scores map[string]model.StructuralScore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores = scores
	c.version = version
	c.computedAt = time.Now().UTC()
	c.ready = true
}

// Snapshot returns the cached scores and the graph version they belong to. ok is false until
// the first Store.
func (c *Cache) Snapshot() (scores map[string]model.StructuralScore, version uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scores, c.version, c.ready
}

// Stale reports whether the cache lags behind graphVersion. An empty cache is stale.
func (c *Cache) Stale(graphVersion uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.ready || c.version != graphVersion
}

type CacheStatus struct {
	Ready      bool      `json:"ready"`
	Version    uint64    `json:"version"`
	ComputedAt time.Time `json:"computed_at,omitempty"`
	Entities   int       `json:"entities"`
}

func (c *Cache) Status() CacheStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStatus{Ready: c.ready, Version: c.version, ComputedAt: c.computedAt, Entities: len(c.scores)}
}
