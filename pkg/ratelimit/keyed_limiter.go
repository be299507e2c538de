package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// KeyedLimiter hands out one token bucket per key (a host, a provider name).
//
// Buckets live in a go-cache with an idle TTL; touching a bucket refreshes its TTL. When the
// number of live buckets reaches capacity the bucket closest to expiry is evicted.
type KeyedLimiter struct {
	mu       sync.Mutex
	buckets  *cache.Cache
	limit    rate.Limit
	burst    int
	capacity int
	idleTTL  time.Duration
}

// NewKeyedLimiter allows perMinute events per key with the given burst.
// perMinute <= 0 disables limiting.
func NewKeyedLimiter(perMinute, burst, capacity int, idleTTL time.Duration) *KeyedLimiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst <= 0 {
		burst = 1
	}
	if capacity <= 0 {
		capacity = 1024
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedLimiter{
		buckets:  cache.New(idleTTL, 2*idleTTL),
		limit:    limit,
		burst:    burst,
		capacity: capacity,
		idleTTL:  idleTTL,
	}
}

// Wait blocks until an event for key is allowed or ctx is done.
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return k.bucket(key).Wait(ctx)
}

// Allow reports whether an event for key may happen now.
func (k *KeyedLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Len returns the number of live buckets.
func (k *KeyedLimiter) Len() int {
	return k.buckets.ItemCount()
}

func (k *KeyedLimiter) bucket(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	if v, ok := k.buckets.Get(key); ok {
		l := v.(*rate.Limiter)
		k.buckets.SetDefault(key, l)
		return l
	}

	if k.buckets.ItemCount() >= k.capacity {
		k.buckets.DeleteExpired()
	}
	if k.buckets.ItemCount() >= k.capacity {
		k.evictOldest()
	}

	l := rate.NewLimiter(k.limit, k.burst)
	k.buckets.SetDefault(key, l)
	return l
}

func (k *KeyedLimiter) evictOldest() {
	var (
		oldestKey string
		oldestExp int64
	)
	for key, item := range k.buckets.Items() {
		if oldestKey == "" || item.Expiration < oldestExp {
			oldestKey = key
			oldestExp = item.Expiration
		}
	}
	if oldestKey != "" {
		k.buckets.Delete(oldestKey)
	}
}
