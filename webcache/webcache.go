// Package webcache caches remote pages behind their URL for a short
// freshness window and counts every access to each URL.
package webcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/briangreenhill/callcache/store"
)

// DefaultTTL is how long fetched content stays fresh
const DefaultTTL = 10 * time.Second

// ErrFetchFailure wraps errors returned by the Fetcher
var ErrFetchFailure = errors.New("fetch failed")

// Cache is the URL fetch cache
type Cache struct {
	st          store.Store
	fetcher     Fetcher
	ttl         time.Duration
	parallelism int
	logger      zerolog.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithTTL sets the freshness window of cached content
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithParallelism bounds the concurrent fetches issued by Warm
func WithParallelism(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a Cache that fetches misses through fetcher
func New(st store.Store, fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		st:          st,
		fetcher:     fetcher,
		ttl:         DefaultTTL,
		parallelism: 4,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the freshness window
func (c *Cache) TTL() time.Duration { return c.ttl }

// Fetch returns the content of url. Every call increments the access
// counter of url exactly once, whether it hits, misses or fails. Content is
// cached only after a successful fetch.
func (c *Cache) Fetch(ctx context.Context, url string) (string, error) {
	count, err := c.st.Incr(ctx, CountKey(url), 1)
	if err != nil {
		return "", fmt.Errorf("count access to %s: %w", url, err)
	}
	log := c.logger.With().Str("url", url).Int64("count", count).Logger()

	cached, ok, err := c.st.Get(ctx, CacheKey(url))
	if err != nil {
		return "", fmt.Errorf("read cache for %s: %w", url, err)
	}
	if ok {
		log.Debug().Msg("cache hit")
		return string(cached), nil
	}

	content, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed")
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailure, url, err)
	}
	if err := c.st.Set(ctx, CacheKey(url), []byte(content), c.ttl); err != nil {
		return "", fmt.Errorf("cache %s: %w", url, err)
	}
	log.Debug().Dur("ttl", c.ttl).Int("bytes", len(content)).Msg("cache miss, stored")
	return content, nil
}

// AccessCount returns how many times url was requested through Fetch
func (c *Cache) AccessCount(ctx context.Context, url string) (int64, error) {
	b, ok, err := c.st.Get(ctx, CountKey(url))
	if err != nil {
		return 0, fmt.Errorf("read access count for %s: %w", url, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("access count for %s is not an integer: %w", url, err)
	}
	return n, nil
}

// Warm fetches every url so later reads hit the cache. Each warm-up counts
// as an access. All urls are attempted; their errors are joined.
func (c *Cache) Warm(ctx context.Context, urls ...string) error {
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(c.parallelism)
	for _, u := range urls {
		p.Go(func(ctx context.Context) error {
			_, err := c.Fetch(ctx, u)
			return err
		})
	}
	return p.Wait()
}
