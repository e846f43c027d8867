package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/services"
)

type DashboardHandler struct {
	dashboard services.IDashboardService
}

func NewDashboardHandler(dashboard services.IDashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}
