package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key.
type RateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate.Limit(rps),
		burst: burst,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return v.(*rate.Limiter)
}

func (rl *RateLimiter) allow(c *gin.Context, key string) bool {
	if rl.getLimiter(key).Allow() {
		return true
	}
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
	c.Abort()
	return false
}

// RateLimitByIP limits unauthenticated routes per client address.
func (rl *RateLimiter) RateLimitByIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.allow(c, "ip:"+c.ClientIP()) {
			c.Next()
		}
	}
}

// RateLimitByUser limits authenticated routes per account. It must run
// after JWTAuthMiddleware; without a user id it falls back to the address.
func (rl *RateLimiter) RateLimitByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id := GetUserID(c); id != "" {
			key = "user:" + id
		}
		if rl.allow(c, key) {
			c.Next()
		}
	}
}
