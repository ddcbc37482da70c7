package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// rateLimiterIdleTTL is how long an idle caller's bucket is kept.
	rateLimiterIdleTTL = 10 * time.Minute

	// rateLimiterSweepInterval bounds how often idle buckets are pruned.
	rateLimiterSweepInterval = time.Minute
)

// RateLimiter is a token bucket per caller. A nil *RateLimiter allows
// everything.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	callers   map[string]*caller
	lastSweep time.Time
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per caller with bursts of up to
// burst. perSecond <= 0 returns nil, which disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		callers: make(map[string]*caller),
	}
}

// Allow reports whether key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	if rl == nil {
		return true
	}
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rateLimiterSweepInterval {
		for k, c := range rl.callers {
			if now.Sub(c.lastSeen) > rateLimiterIdleTTL {
				delete(rl.callers, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.callers[key]
	if !ok {
		c = &caller{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.callers[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked callers.
func (rl *RateLimiter) Len() int {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.callers)
}

// rateLimitMiddleware answers 429 once a caller exceeds its budget. Callers
// are the authenticated user, or the client address for anonymous requests.
// Health endpoints are never limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/healthz") || r.URL.Path == "/readyz" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.limiter.Allow(s.rateLimitKey(r)) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, "rate_limit_exceeded", "too many requests, please try again later", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitKey(r *http.Request) string {
	if userID := s.users.ResolveUser(r); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
