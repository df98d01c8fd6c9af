package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"galaxychat/internal/transport/http/response"
)

type RateLimiterOptions struct {
	Limit          rate.Limit
	Burst          int
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key; defaults to the user id, then the
	// client IP.
	KeyFunc func(*gin.Context) string
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu          sync.Mutex
	options     RateLimiterOptions
	clients     map[string]*client
	lastCleanup time.Time
}

func NewRateLimiter(options RateLimiterOptions) *RateLimiter {
	if options.Limit <= 0 {
		options.Limit = 2
	}
	if options.Burst <= 0 {
		options.Burst = 10
	}
	if options.ExpiryDuration <= 0 {
		options.ExpiryDuration = time.Hour
	}
	if options.KeyFunc == nil {
		options.KeyFunc = clientKey
	}
	return &RateLimiter{
		options:     options,
		clients:     make(map[string]*client),
		lastCleanup: time.Now(),
	}
}

func clientKey(c *gin.Context) string {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(uint); ok && id != 0 {
			return "user:" + strconv.FormatUint(uint64(id), 10)
		}
	}
	return "ip:" + c.ClientIP()
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		if !r.getLimiter(key).Allow() {
			log.WithFields(log.Fields{
				"client": key,
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("rate limit exceeded")

			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", r.options.Burst))
			response.Abort(c, http.StatusTooManyRequests, response.CodeTooManyRequests, "too many requests, please try again later")
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastCleanup) > time.Minute {
		for k, v := range r.clients {
			if now.Sub(v.lastSeen) > r.options.ExpiryDuration {
				delete(r.clients, k)
			}
		}
		r.lastCleanup = now
	}

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: now}
		return limiter
	}
	v.lastSeen = now
	return v.limiter
}
