package middleware

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

type tenantEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// TenantRateLimiter keeps one token bucket per tenant slug in process memory.
type TenantRateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	tenants map[string]*tenantEntry
	calls   int
	now     func() time.Time
}

func NewTenantRateLimiter(requestsPerSecond float64, burst int) *TenantRateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &TenantRateLimiter{
		limit:   rate.Limit(requestsPerSecond),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		tenants: make(map[string]*tenantEntry),
		now:     time.Now,
	}
}

// Allow takes one token for key. When denied, retryAfter is the wait until a
// token is available again.
func (l *TenantRateLimiter) Allow(_ context.Context, key string) (allowed bool, remaining int, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%256 == 0 {
		l.evictIdle(now)
	}

	entry, ok := l.tenants[key]
	if !ok {
		entry = &tenantEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.tenants[key] = entry
	}
	entry.lastSeen = now

	if entry.limiter.AllowN(now, 1) {
		return true, int(math.Floor(entry.limiter.TokensAt(now))), 0
	}

	deficit := 1 - entry.limiter.TokensAt(now)
	wait := time.Duration(deficit / float64(l.limit) * float64(time.Second))
	return false, 0, wait
}

func (l *TenantRateLimiter) evictIdle(now time.Time) {
	for key, entry := range l.tenants {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.tenants, key)
		}
	}
}

// Len reports how many tenants currently hold a bucket.
func (l *TenantRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tenants)
}
