package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

// RateLimiter throttles each client IP independently.
type RateLimiter struct {
	limit rate.Limit
	burst int
	clock clockwork.Clock

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per IP with the given burst.
// It returns nil, a pass-through limiter, when perMinute is not positive.
func NewRateLimiter(perMinute, burst int, clock clockwork.Clock) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		clock:   clock,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.clients[key]
	if !ok {
		r.evictLocked(now)
		entry = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst), lastSeen: now}
		r.clients[key] = entry
	}
	entry.lastSeen = now

	return entry.limiter.AllowN(now, 1)
}

func (r *RateLimiter) evictLocked(now time.Time) {
	for key, entry := range r.clients {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(r.clients, key)
		}
	}
}

// Handler answers 429 once a client exceeds its budget.
func (r *RateLimiter) Handler() gin.HandlerFunc {
	if r == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			Abort(c, http.StatusTooManyRequests, "Too many requests, please try again later")
			return
		}

		c.Next()
	}
}
