package cachectrl

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoCache is an in-process TTL cache for small string values
// such as presigned URLs. Entries are immutable once written and
// simply expire.
type RistrettoCache struct {
	cache *ristretto.Cache[string, string]
}

func NewRistrettoCache() (*RistrettoCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 10_000,
		MaxCost:     1 << 22, // ~4MB of URL strings
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}
	return &RistrettoCache{cache: cache}, nil
}

func (c *RistrettoCache) Get(key string) (string, bool) {
	return c.cache.Get(key)
}

func (c *RistrettoCache) Set(key, value string, ttl time.Duration) {
	c.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	// Writes are buffered; wait so the entry is visible to the next Get.
	c.cache.Wait()
}

func (c *RistrettoCache) Close() {
	c.cache.Close()
}
