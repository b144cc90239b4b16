package source

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const DefaultCacheTTL = 5 * time.Minute
const DefaultCleanupInterval = 10 * time.Minute

// Cached wraps a source with an in-memory TTL cache keyed by the full token.
// Only found values are cached; misses and errors always reach the source.
type Cached struct {
	source Source
	ttl    time.Duration
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewCached wraps src. A non-positive ttl uses DefaultCacheTTL. Cache hits
// are logged at debug level on logger; nil discards them.
func NewCached(src Source, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cached{
		source: src,
		ttl:    ttl,
		cache:  gocache.New(ttl, DefaultCleanupInterval),
		logger: logger,
	}
}

func (c *Cached) Prefix() string { return c.source.Prefix() }

func (c *Cached) Value(ctx context.Context, raw string) (string, bool, error) {
	if cached, ok := c.cache.Get(raw); ok {
		if v, ok := cached.(string); ok {
			c.logger.Debug("cache hit", "prefix", c.source.Prefix(), "token", raw)
			return v, true, nil
		}
	}

	v, found, err := c.source.Value(ctx, raw)
	if err != nil || !found {
		return v, found, err
	}
	c.cache.Set(raw, v, c.ttl)
	return v, true, nil
}

// Flush drops every cached value.
func (c *Cached) Flush() {
	c.cache.Flush()
}
