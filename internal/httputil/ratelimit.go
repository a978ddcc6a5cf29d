package httputil

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPRateLimiter hands out one token bucket per client IP. Buckets idle for
// longer than the idle window are dropped on the next sweep.
type IPRateLimiter struct {
	mu      sync.Mutex
	ips     map[string]*ipLimiter
	r       rate.Limit
	b       int
	idle    time.Duration
	swept   time.Time
	nowFunc func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter creates a limiter allowing r events per second with
// bursts of b per IP.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:     make(map[string]*ipLimiter),
		r:       r,
		b:       b,
		idle:    10 * time.Minute,
		nowFunc: time.Now,
	}
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if now.Sub(l.swept) > l.idle {
		for k, v := range l.ips {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.ips, k)
			}
		}
		l.swept = now
	}

	entry, exists := l.ips[ip]
	if !exists {
		entry = &ipLimiter{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Allow reports whether the client ip may make a request now.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.GetLimiter(ip).AllowN(l.nowFunc(), 1)
}

// Len returns the number of tracked IPs.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

// RateLimit returns middleware that answers 429 once a client exceeds its
// bucket. onLimit, if non-nil, is called for every rejected request.
func RateLimit(l *IPRateLimiter, trustProxy bool, onLimit func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r, trustProxy)) {
				if onLimit != nil {
					onLimit(r)
				}
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
