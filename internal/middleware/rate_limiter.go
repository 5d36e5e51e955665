package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

// DefaultLimiterIdleTTL is how long a client's bucket is kept after its last
// request.
const DefaultLimiterIdleTTL = 10 * time.Minute

type RateLimiterConfig struct {
	Rate    rate.Limit
	Burst   int
	IdleTTL time.Duration
}

// RateLimiter keeps one token bucket per client IP. Idle buckets expire.
type RateLimiter struct {
	config   RateLimiterConfig
	mu       sync.Mutex
	visitors *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = rate.Inf
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultLimiterIdleTTL
	}
	return &RateLimiter{
		config:   config,
		visitors: cache.New(config.IdleTTL, 2*config.IdleTTL),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.visitors.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	}
	// Re-set on every hit so the expiry slides.
	rl.visitors.Set(key, limiter, cache.DefaultExpiration)
	return limiter.(*rate.Limiter)
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !rl.limiterFor(ip).Allow() {
			httputil.RespondWithError(c, &errors.AppError{
				Code:    errors.ErrTooManyRequests,
				Message: "rate limit exceeded",
				Err:     fmt.Errorf("%s %s throttled for %s", c.Request.Method, c.FullPath(), ip),
			})
			return
		}
		c.Next()
	}
}
