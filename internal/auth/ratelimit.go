package auth

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"commerce-backend/internal/config"
	"commerce-backend/internal/engine"
)

// RateLimiter is a token bucket per client IP for the public auth routes.
type RateLimiter struct {
	limiters sync.Map // ip -> *rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{rate: rate.Limit(cfg.RPS), burst: cfg.Burst}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Load(key); ok {
		return l.(*rate.Limiter)
	}
	l, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return l.(*rate.Limiter)
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		l := rl.limiter(c.IP())
		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !l.Allow() {
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("Retry-After", "1")
			return engine.TooManyRequestsError()
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(int(l.Tokens())))
		return c.Next()
	}
}
