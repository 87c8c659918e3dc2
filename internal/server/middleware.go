package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

const (
	// HeaderAPIKey carries the caller's Gemini API key.
	HeaderAPIKey = "X-Gemini-Api-Key"

	ctxAPIKey = "solvewise.api_key"
)

// apiKeyMiddleware resolves the Gemini key for the request and rejects
// requests without one.
func apiKeyMiddleware(fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderAPIKey))
		if key == "" {
			key = strings.TrimSpace(fallback)
		}
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "missing Gemini API key",
			})
			return
		}
		c.Set(ctxAPIKey, key)
		c.Next()
	}
}

func apiKeyFrom(c *gin.Context) string {
	return c.GetString(ctxAPIKey)
}

// ownerFrom returns the history namespace of the request's key.
func ownerFrom(c *gin.Context) string {
	return model.OwnerKey(apiKeyFrom(c))
}

// bodyLimit caps the bytes a handler may read from the request body.
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logx.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
