package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"buildex/backoffice/internal/api/middleware"
	"buildex/backoffice/internal/models"
)

type memRecorder struct {
	mu   sync.Mutex
	logs []models.RequestLog
}

func (m *memRecorder) Record(ctx context.Context, l *models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memRecorder) snapshot() []models.RequestLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RequestLog(nil), m.logs...)
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := &memRecorder{}
	r := gin.New()
	r.Use(middleware.RequestLogger(rec, zap.NewNop(), "/metrics"))
	r.GET("/quotations/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/quotations/ABC", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 10*time.Millisecond)
	got := rec.snapshot()[0]
	assert.Equal(t, "GET", got.Method)
	assert.Equal(t, "/quotations/ABC", got.Path)
	assert.Equal(t, "/quotations/:id", got.Route)
	assert.Equal(t, http.StatusNotFound, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}
