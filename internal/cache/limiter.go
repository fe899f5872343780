package cache

import (
	"time"

	"aifiesta/internal/core"

	"golang.org/x/time/rate"
)

// LimiterStore hands out one token-bucket limiter per client key. Idle
// clients fall out of the underlying LRU after idleTTL.
type LimiterStore struct {
	cache   *LRUCache
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
}

// NewLimiterStore allows perMinute requests per client per minute, with
// bursts up to perMinute. A non-positive perMinute disables limiting.
func NewLimiterStore(perMinute int, idleTTL time.Duration) *LimiterStore {
	if idleTTL <= 0 {
		idleTTL = core.RateLimiterIdleTTL
	}
	ls := &LimiterStore{
		cache:   NewCache(core.CacheDefaultCapacity),
		limit:   rate.Inf,
		idleTTL: idleTTL,
	}
	if perMinute > 0 {
		ls.limit = rate.Every(time.Minute / time.Duration(perMinute))
		ls.burst = perMinute
	}
	return ls
}

// Allow consumes one token for key and reports whether the request may proceed.
func (ls *LimiterStore) Allow(key string) bool {
	if ls.limit == rate.Inf {
		return true
	}
	return ls.limiter(key).Allow()
}

func (ls *LimiterStore) limiter(key string) *rate.Limiter {
	v := ls.cache.GetOrCreate(key, ls.idleTTL, func() any {
		return rate.NewLimiter(ls.limit, ls.burst)
	})
	return v.(*rate.Limiter)
}

// Clients reports how many client limiters are currently tracked.
func (ls *LimiterStore) Clients() int {
	return ls.cache.Len()
}

// Close stops the cleanup worker.
func (ls *LimiterStore) Close() error {
	ls.cache.Stop()
	return nil
}
