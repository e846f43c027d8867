package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

const defaultStatsWindow = 24 * time.Hour

// LogHandler exposes the stored request logs.
type LogHandler struct {
	logs services.IRequestLogService
	now  func() time.Time
}

func NewLogHandler(logs services.IRequestLogService) *LogHandler {
	return &LogHandler{logs: logs, now: time.Now}
}

// List handles GET /api/logs?method=&status=&path=
func (h *LogHandler) List(c *gin.Context) {
	f := models.RequestLogFilter{
		Method:      c.Query("method"),
		PathPrefix:  c.Query("path"),
		PageRequest: pageRequest(c),
	}
	if raw := c.Query("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, errs.Validation("invalid status"))
			return
		}
		f.Status = status
	}
	items, total, err := h.logs.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, items, f.PageRequest, total)
}

// Stats handles GET /api/logs/stats?since=. The default window is the last day.
func (h *LogHandler) Stats(c *gin.Context) {
	since, ok := queryTime(c, "since")
	if !ok {
		return
	}
	if since == nil {
		t := h.now().UTC().Add(-defaultStatsWindow)
		since = &t
	}
	stats, err := h.logs.Stats(c.Request.Context(), *since)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

// Live handles GET /api/logs/live?after=&limit= for polling viewers.
func (h *LogHandler) Live(c *gin.Context) {
	after, ok := queryTime(c, "after")
	if !ok {
		return
	}
	if after == nil {
		t := h.now().UTC().Add(-time.Minute)
		after = &t
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	items, err := h.logs.Live(c.Request.Context(), *after, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []models.RequestLog{}
	}
	respondOK(c, http.StatusOK, items)
}

func (h *LogHandler) Clear(c *gin.Context) {
	n, err := h.logs.Clear(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": n})
}
