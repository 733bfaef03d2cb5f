package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/septivank/smart-copro/internal/apperr"
	"github.com/septivank/smart-copro/internal/identity"
	"github.com/septivank/smart-copro/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestIDHeader = "X-Request-ID"

	contextRequestIDKey = "requestID"
	contextActorKey     = "actor"
	contextLoggerKey    = "logger"
)

// requestID propagates the caller's X-Request-ID or assigns a fresh one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog logs every request with its timing once the handler returns.
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(contextRequestIDKey)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}

// IPRateLimiter manages per-IP rate limiters.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	logger   *zap.Logger
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, logger *zap.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:   r,
		burst:  burst,
		logger: logger,
	}
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	if limiter, ok := i.limiters.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := i.limiters.LoadOrStore(ip, rate.NewLimiter(i.rate, i.burst))
	return limiter.(*rate.Limiter)
}

// RateLimit returns a middleware that rate limits by IP. A non-positive rate
// disables limiting.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if i.rate <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if !i.getLimiter(ip).Allow() {
			i.logger.Warn("rate limit exceeded", zap.String("client_ip", ip), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// authRequired resolves the bearer token into the request's actor.
func authRequired(resolver *identity.Resolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := extractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, identity.ErrMissingToken)
			return
		}

		actor, err := resolver.Resolve(raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		reqLogger := logging.WithActor(logging.WithRequestID(logger, c.GetString(contextRequestIDKey)), actor.ID, string(actor.Role))
		c.Set(contextActorKey, actor)
		c.Set(contextLoggerKey, reqLogger)
		c.Next()
	}
}

// requireRole rejects actors outside roles before the handler reads the
// request body. Services still enforce ownership.
func requireRole(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Is(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: apperr.ForbiddenMessage})
			return
		}
		c.Next()
	}
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, err error) {
	msg := identity.ErrInvalidToken.Error()
	if errors.Is(err, identity.ErrMissingToken) {
		msg = identity.ErrMissingToken.Error()
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: msg})
}

// actorFrom returns the actor set by authRequired. Without one the zero
// Actor has no role and every operation rejects it.
func actorFrom(c *gin.Context) identity.Actor {
	if v, ok := c.Get(contextActorKey); ok {
		if actor, ok := v.(identity.Actor); ok {
			return actor
		}
	}
	return identity.Actor{}
}

func (s *Server) loggerFrom(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(contextLoggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return s.logger
}
