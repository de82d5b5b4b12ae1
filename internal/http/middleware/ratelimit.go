package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/avalon-clinic/scheduling-engine/pkg/logging"
)

const (
	evictEvery = 3 * time.Minute
	staleAfter = 10 * time.Minute
)

// visitor holds the token bucket state for one client IP.
type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter throttles clients per IP with a token bucket: buckets refill at
// perSecond tokens and cap at burst. Idle buckets are evicted so the visitor
// map stays bounded.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perSecond float64
	burst     float64
	logger    *logging.Logger
	now       func() time.Time
}

func NewRateLimiter(perSecond float64, burst int, logger *logging.Logger) *RateLimiter {
	if logger == nil {
		logger = logging.Default()
	}
	rl := &RateLimiter{
		visitors:  make(map[string]*visitor),
		perSecond: perSecond,
		burst:     float64(burst),
		logger:    logger,
		now:       time.Now,
	}
	go rl.evictLoop()
	return rl
}

// WithNow overrides the clock. Used by tests.
func (rl *RateLimiter) WithNow(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Allow reports whether ip still has a token, spending one when it does.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[ip]
	if !ok {
		rl.visitors[ip] = &visitor{tokens: rl.burst - 1, lastSeen: now}
		return rl.burst >= 1
	}

	refilled := v.tokens + now.Sub(v.lastSeen).Seconds()*rl.perSecond
	v.tokens = math.Min(refilled, rl.burst)
	v.lastSeen = now
	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(evictEvery)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		cutoff := rl.now().Add(-staleAfter)
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// clientIP trusts X-Real-Ip when chi's RealIP middleware has populated it.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit answers clients past the configured rate with 429 and a
// Retry-After hint, logging each rejection.
func RateLimit(perSecond float64, burst int, logger *logging.Logger) func(http.Handler) http.Handler {
	rl := NewRateLimiter(perSecond, burst, logger)
	retryAfter := "1"
	if perSecond > 0 && perSecond < 1 {
		retryAfter = strconv.Itoa(int(math.Ceil(1 / perSecond)))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip) {
				rl.logger.Warn("rate limit exceeded",
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
