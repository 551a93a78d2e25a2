package web

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocrud/ioc/logging"
	"github.com/google/uuid"
)

// RequestIDHeader 请求 ID 头
const RequestIDHeader = "X-Request-ID"

// requestLogger 在缺少请求 ID 时生成一个，并记录请求
func (b *Builder) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDHeader, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		if !b.requestLogging {
			return
		}
		logger := b.logger
		fields := []logging.Field{
			{Key: "request_id", Value: requestID},
			{Key: "method", Value: c.Request.Method},
			{Key: "path", Value: c.Request.URL.Path},
			{Key: "status", Value: c.Writer.Status()},
			{Key: "elapsed", Value: time.Since(started).String()},
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logging.Field{Key: "error", Value: c.Errors.String()})
			logger.Warn("request failed", fields...)
			return
		}
		logger.Debug("request", fields...)
	}
}
