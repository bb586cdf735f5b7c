package middlewares

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeremiapane/tenant-realtime/utils"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller: the authenticated user
// when known, the client IP otherwise.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu        sync.Mutex
	callers   map[string]*limiterEntry
	lastSweep time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		callers:   make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > limiterIdleTTL {
		for k, e := range rl.callers {
			if now.Sub(e.lastSeen) > limiterIdleTTL {
				delete(rl.callers, k)
			}
		}
		rl.lastSweep = now
	}

	e, ok := rl.callers[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.callers[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("user_id")
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !rl.allow(key) {
			utils.RespondError(c, http.StatusTooManyRequests, errors.New("too many requests, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
