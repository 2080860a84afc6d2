package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"livecast/internal/core/domain"
	"livecast/pkg/config"
	apperrors "livecast/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterMaxIdle = 10 * time.Minute

// visitor pairs a caller's limiter with its last use so idle entries can
// be evicted.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      rate.Limit
	burstSize int
}

func newRateLimiterStore(r rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		visitors:  make(map[string]*visitor),
		rate:      r,
		burstSize: burst,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, exists := s.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(s.rate, s.burstSize)}
		s.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// evictIdle drops limiters not used since the cutoff. A returning caller
// gets a fresh limiter with a full burst.
func (s *rateLimiterStore) evictIdle(maxIdle time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for key, v := range s.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(s.visitors, key)
		}
	}
}

// limiterKey identifies the caller. Authenticated requests are limited
// per account so the limit follows a user across addresses; anything else
// falls back to the client IP.
func limiterKey(c *gin.Context) string {
	if v, ok := c.Get("user_id"); ok {
		if userID, ok := v.(domain.UserID); ok {
			return "user:" + string(userID)
		}
	}
	return "ip:" + clientIP(c.Request)
}

// clientIP extracts the IP part from the request's remote address.
func clientIP(r *http.Request) string {
	// Try X-Forwarded-For first (behind proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := net.ParseIP(xff)
		if parts != nil {
			return parts.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware throttles requests per caller. It runs after
// authentication so the limiter key can be the account rather than the
// address.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	store := newRateLimiterStore(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	go func() {
		for range time.Tick(time.Minute) {
			store.evictIdle(limiterMaxIdle)
		}
	}()

	var globalSem chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		globalSem = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		// Global concurrent requests throttling
		if globalSem != nil {
			select {
			case globalSem <- struct{}{}:
				defer func() { <-globalSem }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":   string(apperrors.ErrCodeRateLimit),
					"message": "too many concurrent requests",
				})
				return
			}
		}

		if !store.getLimiter(limiterKey(c)).Allow() {
			appErr := apperrors.NewRateLimitError()
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}
		c.Next()
	}
}
