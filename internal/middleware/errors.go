package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/larpcal/backend/pkg/httperr"
	"github.com/larpcal/backend/pkg/response"
)

// ErrorHandler renders the last error attached to the context. Server errors are
// logged with their cause; clients only see a generic message.
func ErrorHandler(logger *zap.Logger, quiet bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		status := httperr.StatusOf(last.Err)
		if !quiet {
			fields := []zap.Field{
				zap.Int("status", status),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Error(last.Err),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request failed", fields...)
			} else {
				logger.Debug("request rejected", fields...)
			}
		}
		if c.Writer.Written() {
			return
		}
		response.Error(c, last.Err)
	}
}

// NotFound renders the 404 envelope for unknown routes.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Error(c, httperr.NotFound(""))
	}
}
