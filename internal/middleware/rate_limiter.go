package middleware

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// keyedRateLimiter keeps one token bucket per key (typically scope:ip). Buckets that
// go unused for ttl are evicted by the cache janitor.
type keyedRateLimiter struct {
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewIPRateLimiter allows up to `requests` events per `window` for each key, with an
// additional burst capacity.
func NewIPRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) RateLimiter {
	return newKeyedRateLimiter(requests, window, burst, ttl)
}

func newKeyedRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *keyedRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &keyedRateLimiter{
		buckets: gocache.New(ttl, ttl),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *keyedRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.buckets.Add(key, limiter, gocache.DefaultExpiration); err != nil {
		if existing, ok := l.buckets.Get(key); ok {
			limiter = existing.(*rate.Limiter)
		}
	}
	// refresh the expiry so active callers keep their bucket
	l.buckets.SetDefault(key, limiter)

	return limiter.AllowN(l.now(), 1)
}
