// Package middleware provides the gin middleware stack shared by every
// route: structured access logging, panic recovery, per-IP rate
// limiting, request ID propagation, CORS, security headers, and a
// request-scoped timeout. Grounded on the teacher's
// internal/middleware/middleware.go — kept the same shapes and names,
// dropped everything tenant/auth/billing specific (APIKeyAuth,
// AuthRateLimiter, Maintenance, BudgetCheck, quota checks) since this
// service has no accounts, no billing, and no maintenance-mode concept.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrorResponse is the standardized error envelope for middleware-level
// failures (panics, rate limits, timeouts) — handler-level failures use
// apierr via internal/httpapi instead.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ErrorHandler logs every request (skipping /health) in a single-line
// access-log format.
func ErrorHandler() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		Output:    gin.DefaultWriter,
		SkipPaths: []string{"/health"},
	})
}

// Recovery turns a panic into a structured 500 response instead of a
// dropped connection, logging the stack via log.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		log.Error("panic recovered",
			zap.String("request_id", requestID),
			zap.Any("panic", recovered),
			zap.String("stack", string(debug.Stack())),
		)

		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "internal server error",
			Code:      "INTERNAL_ERROR",
			Timestamp: time.Now().UTC(),
			RequestID: requestID,
		})
	})
}

// rateLimiterEntry pairs a token-bucket limiter with its last-seen time
// so the cleanup routine can evict idle clients.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages one token-bucket limiter per client IP.
type IPRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rateLimiterEntry
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewIPRateLimiter builds an IPRateLimiter and starts its eviction
// goroutine. rateLimit is in requests/second.
func NewIPRateLimiter(rateLimit rate.Limit, burst int) *IPRateLimiter {
	irl := &IPRateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rate:     rateLimit,
		burst:    burst,
		idleTTL:  time.Hour,
	}
	go irl.cleanupRoutine()
	return irl
}

// GetLimiter returns (creating if needed) the limiter for ip.
func (irl *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	irl.mu.Lock()
	defer irl.mu.Unlock()

	e, ok := irl.limiters[ip]
	if !ok {
		e = &rateLimiterEntry{limiter: rate.NewLimiter(irl.rate, irl.burst), lastSeen: time.Now()}
		irl.limiters[ip] = e
	} else {
		e.lastSeen = time.Now()
	}
	return e.limiter
}

func (irl *IPRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-irl.idleTTL)
		irl.mu.Lock()
		for ip, e := range irl.limiters {
			if e.lastSeen.Before(cutoff) {
				delete(irl.limiters, ip)
			}
		}
		irl.mu.Unlock()
	}
}

// RateLimit returns gin middleware enforcing limiter per client IP,
// responding 429 RATE_LIMITED when exceeded (spec §7).
func RateLimit(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := limiter.GetLimiter(c.ClientIP())
		if !l.Allow() {
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:     "rate limit exceeded",
				Code:      "RATE_LIMITED",
				Timestamp: time.Now().UTC(),
				RequestID: c.GetHeader("X-Request-ID"),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID assigns (or propagates) an 8-hex-character request ID, per
// spec §6 — short enough to read in a log line, long enough that
// collisions within a trace window are implausible.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func generateRequestID() string {
	return uuid.New().String()[:8]
}

// CORS allows any origin to read responses — this is a read-only public
// cache API with no cookies or credentials to protect.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security adds the baseline response headers appropriate for a JSON-only
// API with no rendered HTML surface.
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// Timeout bounds request handling to duration, replying 504 TIMEOUT
// (spec §7) if the handler chain hasn't finished by then.
func Timeout(duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), duration)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{}, 1)
		go func() {
			c.Next()
			finished <- struct{}{}
		}()

		select {
		case <-finished:
			return
		case <-ctx.Done():
			c.JSON(http.StatusGatewayTimeout, ErrorResponse{
				Error:     "request deadline elapsed",
				Code:      "TIMEOUT",
				Timestamp: time.Now().UTC(),
				RequestID: c.GetHeader("X-Request-ID"),
			})
			c.Abort()
		}
	}
}

// Logger emits one structured access-log line per request.
func Logger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - %s \"%s %s\" %d %s %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.ClientIP,
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
		)
	})
}
