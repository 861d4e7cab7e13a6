package policy

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultLimiterIdle is how long an unused client bucket is kept.
const DefaultLimiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address. Buckets of clients
// idle for longer than the idle timeout are evicted.
type IPRateLimiter struct {
	ips       map[string]*clientLimiter
	mu        sync.Mutex
	r         rate.Limit
	b         int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter allows r requests per second per client with bursts of b.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	if b <= 0 {
		b = 1
	}
	return &IPRateLimiter{
		ips:  make(map[string]*clientLimiter),
		r:    r,
		b:    b,
		idle: DefaultLimiterIdle,
		now:  time.Now,
	}
}

// WithIdleTimeout sets how long an unused client bucket is kept
func (i *IPRateLimiter) WithIdleTimeout(d time.Duration) *IPRateLimiter {
	if d > 0 {
		i.idle = d
	}
	return i
}

// Clients returns the number of tracked client buckets
func (i *IPRateLimiter) Clients() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

func (i *IPRateLimiter) Enabled() bool {
	return i.r > 0
}

func (i *IPRateLimiter) Name() string {
	return "rate_limiting"
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if now.Sub(i.lastSweep) >= i.idle {
		for key, c := range i.ips {
			if now.Sub(c.lastSeen) >= i.idle {
				delete(i.ips, key)
			}
		}
		i.lastSweep = now
	}

	c, exists := i.ips[ip]
	if !exists {
		c = &clientLimiter{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Allow reports whether the client may issue another request now.
func (i *IPRateLimiter) Allow(ip string) bool {
	if !i.Enabled() {
		return true
	}
	return i.getLimiter(ip).Allow()
}

// LimitMiddleware rejects requests over the client's budget with 429.
func (i *IPRateLimiter) LimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.Allow(clientIP(r)) {
			http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
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
