package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taskhive/service-booking/pkg/auth"
	"github.com/taskhive/service-booking/pkg/response"
)

const requestIDHeader = "X-Request-ID"

// RecoveryMiddleware turns panics into 500 responses and logs the stack.
func RecoveryMiddleware(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Envelope{
			Error: &response.ErrorBody{Code: "internal_error", Message: "internal server error"},
		})
	})
}

// LoggerMiddleware writes one access log entry per request.
func LoggerMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDHeader)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request failed", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request rejected", fields...)
		default:
			log.Info("request served", fields...)
		}
	}
}

// RequestIDMiddleware propagates or assigns an X-Request-ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// CORSMiddleware allows browser clients from any origin with bearer auth.
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

// SecurityHeadersMiddleware sets conservative security headers.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func (s *limiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = l
	}
	return l
}

// RateLimitMiddleware limits each caller to perMinute requests. Callers with a
// valid bearer token are keyed by user ID, everyone else by client IP. The
// token is verified here so the key does not depend on where AuthMiddleware
// sits in the chain.
func RateLimitMiddleware(perMinute int, jwtManager *auth.JWTManager, log *zap.Logger) gin.HandlerFunc {
	if perMinute <= 0 {
		perMinute = 120
	}
	store := &limiterStore{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
	return func(c *gin.Context) {
		key := rateLimitKey(c, jwtManager)
		if !store.get(key).Allow() {
			log.Warn("rate limit exceeded", zap.String("key", key))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Envelope{
				Error: &response.ErrorBody{Code: "rate_limited", Message: "rate limit exceeded, try again later"},
			})
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context, jwtManager *auth.JWTManager) string {
	if id, ok := GetUserID(c); ok {
		return "user:" + id.String()
	}
	if jwtManager != nil {
		if token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); found && token != "" {
			if claims, err := jwtManager.Verify(token); err == nil {
				return "user:" + claims.UserID.String()
			}
		}
	}
	return "ip:" + c.ClientIP()
}
