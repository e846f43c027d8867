package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"buildex/backoffice/internal/config"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTTL         = 30 * time.Minute
)

// Bucket is a token bucket: Size tokens, refilled at Rate per second.
type Bucket struct {
	Size int
	Rate int
}

// RouteLimits overrides the configured buckets for one route.
// Past the soft bucket a visitor must pass the captcha, past the hard one they are refused.
type RouteLimits struct {
	Soft Bucket
	Hard Bucket
}

type clientLimiter struct {
	softLimiter *rate.Limiter
	hardLimiter *rate.Limiter
	lastSeen    time.Time
}

// RateLimiterMiddleware keeps one pair of limiters per visitor and route.
type RateLimiterMiddleware struct {
	clients  map[string]*clientLimiter
	mu       sync.Mutex
	defaults RouteLimits
	routes   map[string]RouteLimits
	logger   *zap.Logger
}

// NewRateLimiterMiddleware uses the configured buckets for every route not in routes.
func NewRateLimiterMiddleware(cfg *config.Config, routes map[string]RouteLimits, logger *zap.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		clients: make(map[string]*clientLimiter),
		defaults: RouteLimits{
			Soft: Bucket{Size: cfg.RateLimitSoftBucketSize, Rate: cfg.RateLimitSoftRefillRate},
			Hard: Bucket{Size: cfg.RateLimitHardBucketSize, Rate: cfg.RateLimitHardRefillRate},
		},
		routes: routes,
		logger: logger,
	}
}

// RunCleanup drops idle visitors until ctx is done.
func (rm *RateLimiterMiddleware) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rm.evictIdle(time.Now()); n > 0 {
				rm.logger.Debug("Rate limiter cleanup", zap.Int("removed", n))
			}
		}
	}
}

func (rm *RateLimiterMiddleware) evictIdle(now time.Time) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	count := 0
	for id, cl := range rm.clients {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rm.clients, id)
			count++
		}
	}
	return count
}

func clientIdentifier(c *gin.Context) string {
	return c.ClientIP() + "|" + c.GetHeader("X-BFP") + "|" + c.GetHeader("X-SPA")
}

func (rm *RateLimiterMiddleware) limiterFor(key string, limits RouteLimits) *clientLimiter {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	cl, ok := rm.clients[key]
	if !ok {
		cl = &clientLimiter{
			softLimiter: rate.NewLimiter(rate.Limit(limits.Soft.Rate), limits.Soft.Size),
			hardLimiter: rate.NewLimiter(rate.Limit(limits.Hard.Rate), limits.Hard.Size),
		}
		rm.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl
}

// Limit creates the Gin middleware handler. Run CaptchaMiddleware before it.
func (rm *RateLimiterMiddleware) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		limits, ok := rm.routes[route]
		if !ok {
			limits = rm.defaults
		}
		visitor := clientIdentifier(c)
		limiter := rm.limiterFor(visitor+"|"+route, limits)

		if !limiter.hardLimiter.Allow() {
			rm.logger.Warn("Hard rate limit exceeded", zap.String("client", visitor), zap.String("route", route))
			abort(c, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		if !c.GetBool(ContextKeyIsHumanVerified) && !limiter.softLimiter.Allow() {
			rm.logger.Info("Soft rate limit exceeded, captcha required", zap.String("client", visitor), zap.String("route", route))
			abort(c, http.StatusTeapot, "Captcha validation required")
			return
		}
		c.Next()
	}
}
