package quote

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Lookuper is the oracle contract wrapped by Cache.
type Lookuper interface {
	Lookup(ctx context.Context, symbol string) (domain.Quote, error)
}

// Cache memoizes successful lookups of an upstream oracle for a fixed TTL.
// Misses and errors are never cached, so an unknown symbol is re-checked
// on every request.
type Cache struct {
	next Lookuper
	c    *ristretto.Cache
	ttl  time.Duration
}

// NewCache wraps next with a TTL cache bounded to maxEntries quotes.
func NewCache(next Lookuper, maxEntries int64, ttl time.Duration) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{next: next, c: c, ttl: ttl}, nil
}

// Lookup serves symbol from the cache when present, otherwise asks the
// upstream oracle and stores a successful answer.
func (c *Cache) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	if v, ok := c.c.Get(symbol); ok {
		return v.(domain.Quote), nil
	}

	q, err := c.next.Lookup(ctx, symbol)
	if err != nil {
		return domain.Quote{}, err
	}
	c.c.SetWithTTL(symbol, q, 1, c.ttl)
	return q, nil
}

// Wait blocks until pending cache writes are visible to Get.
func (c *Cache) Wait() { c.c.Wait() }

// Close releases the cache's background goroutines.
func (c *Cache) Close() { c.c.Close() }
