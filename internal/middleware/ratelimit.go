package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// TokenBucket implements token bucket rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	perSecond  float64
	lastRefill time.Time
	lastUsed   time.Time
	now        func() time.Time
}

// NewTokenBucket holds burst tokens and refills perMinute tokens every minute.
func NewTokenBucket(burst, perMinute int) *TokenBucket {
	return newTokenBucket(burst, perMinute, time.Now)
}

func newTokenBucket(burst, perMinute int, now func() time.Time) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	t := now()
	return &TokenBucket{
		capacity:   float64(burst),
		tokens:     float64(burst),
		perSecond:  float64(perMinute) / 60,
		lastRefill: t,
		lastUsed:   t,
		now:        now,
	}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.perSecond
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
	tb.lastUsed = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// RetryAfter estimates the wait until the next token.
func (tb *TokenBucket) RetryAfter() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.perSecond <= 0 {
		return time.Minute
	}
	missing := 1 - tb.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / tb.perSecond * float64(time.Second))
}

// RateLimiter manages one bucket per client + IP
type RateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*TokenBucket
	burst     int
	perMinute int
	now       func() time.Time
}

func NewRateLimiter(burst, perMinute int) *RateLimiter {
	return &RateLimiter{
		buckets:   make(map[string]*TokenBucket),
		burst:     burst,
		perMinute: perMinute,
		now:       time.Now,
	}
}

func (rl *RateLimiter) bucket(key string) *TokenBucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = newTokenBucket(rl.burst, rl.perMinute, rl.now)
		rl.buckets[key] = b
	}
	return b
}

func (rl *RateLimiter) Allow(key string) bool { return rl.bucket(key).Allow() }

// Cleanup removes buckets idle for 10 minutes until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune(10 * time.Minute)
		}
	}
}

func (rl *RateLimiter) prune(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		b.mu.Lock()
		stale := now.Sub(b.lastUsed) > idle
		b.mu.Unlock()
		if stale {
			delete(rl.buckets, key)
		}
	}
}

// Middleware rejects requests over the limit with 429
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientFromContext(r.Context()) + ":" + clientIP(r)
		b := rl.bucket(key)
		if !b.Allow() {
			secs := int(b.RetryAfter().Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			http.Error(w, "rate limit exceeded, please try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
