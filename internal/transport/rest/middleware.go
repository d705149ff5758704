package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mschirtzinger/teamboard/internal/ctxutil"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"
)

// RequestID reuses the caller's X-Request-Id or generates one, and echoes
// it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// UserID attributes the request to X-User-Id, or to the anonymous user.
func UserID() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetHeader(HeaderUserID)
		if user == "" {
			user = ctxutil.AnonymousUser
		}
		c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), user))
		c.Next()
	}
}

// Logger writes one line per request.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"requestId", ctxutil.RequestID(ctx),
			"userId", ctxutil.UserID(ctx),
		)
	}
}

// Recovery turns panics into 500 responses.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		logger.Error("panic in handler", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	})
}

// CORS allows the configured browser origins. "*" allows any.
func CORS(origins []string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, "+HeaderUserID+", "+HeaderRequestID)
			c.Header("Access-Control-Expose-Headers", HeaderRequestID)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
