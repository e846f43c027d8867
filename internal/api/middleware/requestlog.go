package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"buildex/backoffice/internal/models"
)

const requestLogWriteTimeout = 5 * time.Second

// RequestRecorder persists request logs.
type RequestRecorder interface {
	Record(ctx context.Context, l *models.RequestLog) error
}

// RequestLogger logs every request with zap and stores it through recorder
// off the request path. Paths starting with any of skipPrefixes are only logged.
func RequestLogger(recorder RequestRecorder, logger *zap.Logger, skipPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		entry := &models.RequestLog{
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			Route:     c.FullPath(),
			Status:    c.Writer.Status(),
			LatencyMs: float64(latency.Microseconds()) / 1000,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			AdminID:   c.GetString(ContextKeyAdminID),
			Error:     c.Errors.ByType(gin.ErrorTypeAny).String(),
			CreatedAt: start.UTC(),
		}

		fields := []zap.Field{
			zap.String("method", entry.Method),
			zap.String("path", entry.Path),
			zap.Int("status", entry.Status),
			zap.Duration("latency", latency),
			zap.String("ip", entry.IP),
		}
		switch {
		case entry.Status >= 500:
			logger.Error("Request", append(fields, zap.String("error", entry.Error))...)
		case entry.Status >= 400:
			logger.Warn("Request", fields...)
		default:
			logger.Info("Request", fields...)
		}

		if recorder == nil || entry.Method == "OPTIONS" {
			return
		}
		for _, p := range skipPrefixes {
			if strings.HasPrefix(entry.Path, p) {
				return
			}
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), requestLogWriteTimeout)
			defer cancel()
			if err := recorder.Record(ctx, entry); err != nil {
				logger.Warn("Failed to store request log", zap.Error(err))
			}
		}()
	}
}
