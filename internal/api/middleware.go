package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/internal/handler"
	"github.com/Gopher0727/Guildhall/internal/model"
	"github.com/Gopher0727/Guildhall/internal/service"
	"github.com/Gopher0727/Guildhall/middleware/jwt"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
	"github.com/Gopher0727/Guildhall/utils/ratelimit"
)

const requestIDHeader = "X-Request-ID"

// UserResolver loads the persisted user behind a token subject.
type UserResolver interface {
	Resolve(ctx context.Context, subject string) (*model.User, error)
}

type MiddlewareManager struct {
	tokenManager *jwt.TokenManager
	users        UserResolver
	rateLimiter  ratelimit.Limiter
	logger       *logger.Logger
}

func NewMiddlewareManager(
	tokenManager *jwt.TokenManager,
	users UserResolver,
	rateLimiter ratelimit.Limiter,
	logger *logger.Logger,
) *MiddlewareManager {
	return &MiddlewareManager{
		tokenManager: tokenManager,
		users:        users,
		rateLimiter:  rateLimiter,
		logger:       logger,
	}
}

// TraceID tags the request context with the caller's X-Request-ID or a new
// uuid and echoes it back.
func (m *MiddlewareManager) TraceID() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(requestIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logger.WithTraceID(c.Request.Context(), traceID))
		c.Header(requestIDHeader, traceID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func (m *MiddlewareManager) claims(c *gin.Context) (*jwt.Claims, error) {
	tokenString, err := bearerToken(c)
	if err != nil {
		return nil, err
	}
	claims, err := m.tokenManager.ParseToken(tokenString)
	if err != nil {
		m.logger.WarnContext(c.Request.Context(), "token validation failed",
			zap.Error(err),
			zap.String("ip", c.ClientIP()),
		)
		return nil, err
	}
	return claims, nil
}

// JWTAuth verifies the bearer token and stores its claims. It does not
// require the user to exist yet, so /users/sync can sit behind it.
func (m *MiddlewareManager) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.claims(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(handler.ContextClaimsKey, claims)
		c.Next()
	}
}

// RequireUser resolves the claims set by JWTAuth to a synced user.
func (m *MiddlewareManager) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get(handler.ContextClaimsKey)
		claims, ok := v.(*jwt.Claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if !m.attachUser(c, claims) {
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through.
func (m *MiddlewareManager) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.Next()
			return
		}
		claims, err := m.claims(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(handler.ContextClaimsKey, claims)
		if !m.attachUser(c, claims) {
			return
		}
		c.Next()
	}
}

func (m *MiddlewareManager) attachUser(c *gin.Context, claims *jwt.Claims) bool {
	user, err := m.users.Resolve(c.Request.Context(), claims.Subject)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not synced"})
		return false
	case err != nil:
		m.logger.ErrorContext(c.Request.Context(), "failed to resolve user",
			zap.String("subject", claims.Subject),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(handler.StatusFor(err), gin.H{"error": "internal server error"})
		return false
	}
	c.Set(handler.ContextUserKey, user)
	c.Set(handler.ContextUserIDKey, user.ID)
	c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), user.ID))
	return true
}

// RateLimit applies rule per user when authenticated, otherwise per client IP.
func (m *MiddlewareManager) RateLimit(rule ratelimit.Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rule.Limit <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()

		key := "ip:" + c.ClientIP()
		if userID := c.GetString(handler.ContextUserIDKey); userID != "" {
			key = "user:" + userID
		}

		decision, err := m.rateLimiter.Allow(ctx, key, rule)
		if err != nil {
			m.logger.ErrorContext(ctx, "rate limit check failed",
				zap.String("key", key),
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retryAfter := int((decision.ResetIn + time.Second - 1) / time.Second)
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

func (m *MiddlewareManager) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		// c.Request carries the user id once RequireUser ran.
		ctx := c.Request.Context()
		switch {
		case statusCode >= 500:
			m.logger.ErrorContext(ctx, "server error", fields...)
		case statusCode >= 400:
			m.logger.WarnContext(ctx, "client error", fields...)
		default:
			m.logger.InfoContext(ctx, "request completed", fields...)
		}
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.ErrorContext(c.Request.Context(), "panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
		}()

		c.Next()
	}
}
