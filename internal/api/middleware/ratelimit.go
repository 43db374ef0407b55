package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/datacloud-project/orchestrator/internal/api/types"
)

type limiterEntry struct {
	limiter *rate.Limiter
	last    time.Time
}

// RateLimiter applies an IP-based token bucket. State is per instance so
// tests and multiple servers in one process do not share buckets.
type RateLimiter struct {
	rps   float64
	burst int

	mu       sync.Mutex
	visitors map[string]*limiterEntry
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{rps: rps, burst: burst, visitors: map[string]*limiterEntry{}}
	go rl.gc()
	return rl
}

func (rl *RateLimiter) gc() {
	for range time.Tick(5 * time.Minute) {
		rl.mu.Lock()
		for k, v := range rl.visitors {
			if time.Since(v.last) > 10*time.Minute {
				delete(rl.visitors, k)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		rl.mu.Lock()
		le, ok := rl.visitors[ip]
		if !ok {
			le = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
			rl.visitors[ip] = le
		}
		le.last = time.Now()
		allow := le.limiter.Allow()
		rl.mu.Unlock()
		if !allow {
			types.WriteJSON(w, http.StatusTooManyRequests, types.ErrorMessage{
				Status: http.StatusTooManyRequests,
				Detail: "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
