package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"buildex/backoffice/internal/api/handlers"
	"buildex/backoffice/internal/models"
)

func newLogRouter(logs *MockRequestLogService) http.Handler {
	h := handlers.NewLogHandler(logs)
	r := newTestRouter()
	r.GET("/logs", h.List)
	r.GET("/logs/stats", h.Stats)
	r.GET("/logs/live", h.Live)
	r.DELETE("/logs", h.Clear)
	return r
}

func TestLogHandler_List_Filters(t *testing.T) {
	logs := new(MockRequestLogService)
	logs.On("List", mock.Anything, mock.MatchedBy(func(f models.RequestLogFilter) bool {
		return f.Method == "POST" && f.Status == 409 && f.PathPrefix == "/api/quotations" && f.Page == 2
	})).Return([]models.RequestLog{{Method: "POST", Path: "/api/quotations/X/status", Status: 409}}, int64(21), nil)

	w := perform(newLogRouter(logs), http.MethodGet, "/logs?method=POST&status=409&path=/api/quotations&page=2", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 2, env.Pagination.Page)
	assert.Equal(t, int64(21), env.Pagination.Total)
}

func TestLogHandler_List_BadStatus(t *testing.T) {
	logs := new(MockRequestLogService)

	w := perform(newLogRouter(logs), http.MethodGet, "/logs?status=teapot", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogHandler_Stats_DefaultsToLastDay(t *testing.T) {
	logs := new(MockRequestLogService)
	before := time.Now().UTC().Add(-24 * time.Hour)
	logs.On("Stats", mock.Anything, mock.MatchedBy(func(since time.Time) bool {
		return !since.Before(before) && since.Before(before.Add(time.Minute))
	})).Return(&models.RequestLogStats{Total: 3, ByStatus: map[string]int64{"2xx": 3}}, nil)

	w := perform(newLogRouter(logs), http.MethodGet, "/logs/stats", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats models.RequestLogStats
	decodeData(t, decodeEnvelope(t, w), &stats)
	assert.Equal(t, int64(3), stats.Total)
	logs.AssertExpectations(t)
}

func TestLogHandler_Stats_ExplicitSince(t *testing.T) {
	logs := new(MockRequestLogService)
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	logs.On("Stats", mock.Anything, since).Return(&models.RequestLogStats{Since: since}, nil)

	w := perform(newLogRouter(logs), http.MethodGet, "/logs/stats?since=2025-03-01", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	logs.AssertExpectations(t)
}

func TestLogHandler_Live(t *testing.T) {
	logs := new(MockRequestLogService)
	after := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	logs.On("Live", mock.Anything, after, 5).Return(nil, nil)

	w := perform(newLogRouter(logs), http.MethodGet, "/logs/live?after=2025-03-01T10:00:00Z&limit=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, w.Body.String())
}

func TestLogHandler_Clear(t *testing.T) {
	logs := new(MockRequestLogService)
	logs.On("Clear", mock.Anything).Return(int64(42), nil)

	w := perform(newLogRouter(logs), http.MethodDelete, "/logs", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"deleted":42}}`, w.Body.String())
}
