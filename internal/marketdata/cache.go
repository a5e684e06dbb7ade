package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Key formats for cached payloads
const (
	keyHistory = "md:history:%s:%s"
	keyQuote   = "md:quote:%s"
)

// CachedSource wraps another Source with a Redis cache. History is cached
// per symbol+period; quotes get a short TTL since they go stale fast.
// When Redis is unavailable the wrapper degrades to pass-through rather
// than failing the fetch.
type CachedSource struct {
	inner      Source
	client     *redis.Client
	historyTTL time.Duration
	quoteTTL   time.Duration
	log        zerolog.Logger

	mu           sync.Mutex
	failureCount int
	healthy      bool
}

// NewCachedSource wraps inner with a Redis cache.
func NewCachedSource(inner Source, client *redis.Client, historyTTL, quoteTTL time.Duration, log zerolog.Logger) *CachedSource {
	return &CachedSource{
		inner:      inner,
		client:     client,
		historyTTL: historyTTL,
		quoteTTL:   quoteTTL,
		log:        log.With().Str("component", "marketdata_cache").Logger(),
		healthy:    true,
	}
}

func (c *CachedSource) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= 3 && c.healthy {
		c.healthy = false
		c.log.Warn().Err(err).Msg("redis unhealthy, caching disabled until recovery")
	}
}

func (c *CachedSource) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy {
		c.log.Info().Msg("redis recovered, caching re-enabled")
	}
	c.healthy = true
	c.failureCount = 0
}

func (c *CachedSource) usable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthy
}

// GetHistory serves from cache when possible, falling through to the
// wrapped source on miss or Redis failure.
func (c *CachedSource) GetHistory(ctx context.Context, symbol string, period Period) (PriceSeries, error) {
	key := fmt.Sprintf(keyHistory, symbol, period)

	if c.usable() {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var series PriceSeries
			if jsonErr := json.Unmarshal(payload, &series); jsonErr == nil && len(series) > 0 {
				c.recordSuccess()
				return series, nil
			}
		case err != redis.Nil:
			c.recordFailure(err)
		}
	}

	series, err := c.inner.GetHistory(ctx, symbol, period)
	if err != nil {
		return nil, err
	}

	if c.usable() {
		if payload, jsonErr := json.Marshal(series); jsonErr == nil {
			if setErr := c.client.Set(ctx, key, payload, c.historyTTL).Err(); setErr != nil {
				c.recordFailure(setErr)
			} else {
				c.recordSuccess()
			}
		}
	}
	return series, nil
}

// GetLatestQuote serves from cache when possible.
func (c *CachedSource) GetLatestQuote(ctx context.Context, symbol string) (*Quote, error) {
	key := fmt.Sprintf(keyQuote, symbol)

	if c.usable() {
		payload, err := c.client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var q Quote
			if jsonErr := json.Unmarshal(payload, &q); jsonErr == nil && q.Price > 0 {
				c.recordSuccess()
				return &q, nil
			}
		case err != redis.Nil:
			c.recordFailure(err)
		}
	}

	q, err := c.inner.GetLatestQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if c.usable() {
		if payload, jsonErr := json.Marshal(q); jsonErr == nil {
			if setErr := c.client.Set(ctx, key, payload, c.quoteTTL).Err(); setErr != nil {
				c.recordFailure(setErr)
			}
		}
	}
	return q, nil
}
