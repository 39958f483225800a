package middleware

import (
	"execbox/pkg/errors"
	"execbox/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig describes a global token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the refill rate; zero or less disables limiting.
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// RateLimitMiddleware rejects requests once the bucket is empty.
func RateLimitMiddleware(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			response.AbortWithErrorCode(c, errors.TooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
