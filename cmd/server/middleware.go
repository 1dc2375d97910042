package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/edibez/tokenagent/internal/auth"
	"github.com/edibez/tokenagent/pkg/metrics"
	"github.com/edibez/tokenagent/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ctxRequestID = "request_id"
	ctxAPIKey    = "api_key"
)

// requestID tags each request with an id (reusing the caller's
// X-Request-ID when present) and logs it on completion.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		requestLogger(c).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func apiKeyFrom(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	return c.Query("api_key")
}

func (s *server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := apiKeyFrom(c)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "API key required"})
			return
		}

		apiKey, err := s.keys.Validate(c.Request.Context(), key)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidKey) {
				requestLogger(c).Error("validate key failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.ErrorResponse{Error: "Invalid API key"})
			return
		}
		if err := s.keys.RecordUse(c.Request.Context(), key); err != nil {
			requestLogger(c).Warn("record key use failed", zap.Error(err))
		}

		c.Set(ctxAPIKey, apiKey)
		c.Next()
	}
}

func (s *server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.ClientIP()
		if v, ok := c.Get(ctxAPIKey); ok {
			caller = "key:" + strconv.FormatInt(v.(*auth.APIKey).ID, 10)
		}

		allowed, remaining, err := s.limiter.Allow(c.Request.Context(), caller)
		if err != nil {
			// fail open
			requestLogger(c).Warn("rate limit check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			metrics.RateLimited.Inc()
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{Error: "Rate limit exceeded"})
			return
		}
		c.Next()
	}
}
