package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CacheInvalidator drops a cached report.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// InvalidateOnWrite invalidates after every successful non-read request.
func InvalidateOnWrite(inv CacheInvalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() >= http.StatusBadRequest {
			return
		}
		inv.Invalidate(c.Request.Context())
	}
}
