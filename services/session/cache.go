package session

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/authgate/authgate/models"
)

// cachedResult is a terminal validation outcome held for a short TTL so
// repeated checks within the same request skip re-validation.
type cachedResult struct {
	principal *models.Principal
	authErr   *AuthError
	source    Source
	expiresAt time.Time
}

const cacheShardCount = 32

// cacheShard guards one slice of the fingerprint space with its own lock.
type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]*cachedResult
}

// resultCache is the per-request-identity validation cache. Entries expire
// after a short TTL (tens of seconds) and are swept by a background reaper.
// The fingerprint space is sharded so distinct request identities do not
// serialize on a single lock.
type resultCache struct {
	shards [cacheShardCount]*cacheShard
	ttl    time.Duration
	now    func() time.Time
}

func newResultCache(ttl time.Duration, now func() time.Time) *resultCache {
	c := &resultCache{
		ttl: ttl,
		now: now,
	}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]*cachedResult)}
	}
	return c
}

func (c *resultCache) shard(fingerprint string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fingerprint))
	return c.shards[h.Sum32()%cacheShardCount]
}

func (c *resultCache) get(fingerprint string) *cachedResult {
	shard := c.shard(fingerprint)
	shard.mu.RLock()
	entry, ok := shard.entries[fingerprint]
	shard.mu.RUnlock()
	if !ok {
		return nil
	}
	if c.now().After(entry.expiresAt) {
		shard.mu.Lock()
		delete(shard.entries, fingerprint)
		shard.mu.Unlock()
		return nil
	}
	return entry
}

func (c *resultCache) put(fingerprint string, entry *cachedResult) {
	entry.expiresAt = c.now().Add(c.ttl)
	shard := c.shard(fingerprint)
	shard.mu.Lock()
	shard.entries[fingerprint] = entry
	shard.mu.Unlock()
}

func (c *resultCache) remove(fingerprint string) {
	shard := c.shard(fingerprint)
	shard.mu.Lock()
	delete(shard.entries, fingerprint)
	shard.mu.Unlock()
}

// reapExpired removes expired entries across all shards and returns the
// number removed.
func (c *resultCache) reapExpired() int {
	now := c.now()
	removed := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if now.After(entry.expiresAt) {
				delete(shard.entries, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// StartCacheReaper sweeps expired validation results until ctx is cancelled.
func (v *Validator) StartCacheReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	v.logger.Info("started validation cache reaper", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if removed := v.cache.reapExpired(); removed > 0 {
				v.logger.Debug("reaped expired validation results", zap.Int("removed", removed))
			}
		case <-ctx.Done():
			v.logger.Info("stopping validation cache reaper")
			return
		}
	}
}
