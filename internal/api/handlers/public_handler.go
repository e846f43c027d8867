package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

// StatsInvalidator drops cached dashboard figures.
type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// PublicHandler serves quotations to clients through their share token.
// These routes are unauthenticated.
type PublicHandler struct {
	quotations services.IQuotationService
	clients    services.IClientService
	settings   services.ISettingsService
	dashboard  StatsInvalidator
	logger     *zap.Logger
}

func NewPublicHandler(quotations services.IQuotationService, clients services.IClientService, settings services.ISettingsService, dashboard StatsInvalidator, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{quotations: quotations, clients: clients, settings: settings, dashboard: dashboard, logger: logger}
}

// GetQuotation handles GET /api/public/quotations/:token. The first view
// moves the client status to viewed; failing to record it does not fail the
// request.
func (h *PublicHandler) GetQuotation(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := h.quotations.FindByToken(ctx, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.quotations.MarkViewed(ctx, q.ID, c.ClientIP()); err != nil {
		h.logger.Warn("Failed to mark quotation viewed", zap.String("quotation_id", q.ID.String()), zap.Error(err))
	} else if q.ClientStatus == models.ClientPending {
		q.ClientStatus = models.ClientViewed
		// GET skips InvalidateOnWrite, but this view changed the status counts.
		if h.dashboard != nil {
			h.dashboard.Invalidate(ctx)
		}
	}

	view := q.ToPublic()
	client, err := h.clients.FindByID(ctx, q.ClientID)
	switch {
	case err == nil:
		view.Client = &models.PublicClient{Name: client.Name, Company: client.Company}
	case errors.Is(err, errs.ErrNotFound):
	default:
		h.logger.Warn("Failed to load client for public quotation", zap.String("quotation_id", q.ID.String()), zap.Error(err))
	}
	company := h.settings.Get().Company
	company.LogoKey = ""
	view.Company = &company

	respondOK(c, http.StatusOK, view)
}

// Respond handles POST /api/public/quotations/:token/respond.
func (h *PublicHandler) Respond(c *gin.Context) {
	var resp models.ClientResponse
	if !bindJSON(c, &resp) {
		return
	}
	resp.IP = c.ClientIP()
	resp.UserAgent = c.Request.UserAgent()

	q, err := h.quotations.RespondByToken(c.Request.Context(), c.Param("token"), &resp)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, q.ToPublic())
}
