package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

// QuotationHandler serves the authenticated quotation endpoints.
type QuotationHandler struct {
	quotations services.IQuotationService
	clients    services.IClientService
	invoices   services.IInvoiceService
	pdfs       services.IQuotationPDFService
	queue      jobs.Enqueuer
	logger     *zap.Logger
}

func NewQuotationHandler(
	quotations services.IQuotationService,
	clients services.IClientService,
	invoices services.IInvoiceService,
	pdfs services.IQuotationPDFService,
	queue jobs.Enqueuer,
	logger *zap.Logger,
) *QuotationHandler {
	return &QuotationHandler{
		quotations: quotations,
		clients:    clients,
		invoices:   invoices,
		pdfs:       pdfs,
		queue:      queue,
		logger:     logger,
	}
}

type statusRequest struct {
	Status models.QuotationStatus `json:"status" binding:"required"`
}

// quotationDetail is a quotation with its client populated.
type quotationDetail struct {
	*models.Quotation
	Client *models.Client `json:"client,omitempty"`
}

func (h *QuotationHandler) Create(c *gin.Context) {
	var in models.QuotationInput
	if !bindJSON(c, &in) {
		return
	}
	q, err := h.quotations.Create(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, q)
}

// List handles GET /api/quotations with status, clientStatus, clientId,
// search, from and to filters.
func (h *QuotationHandler) List(c *gin.Context) {
	f := models.QuotationFilter{
		Status:       models.QuotationStatus(c.Query("status")),
		ClientStatus: models.ClientStatus(c.Query("clientStatus")),
		Search:       c.Query("search"),
		PageRequest:  pageRequest(c),
	}
	if f.Status != "" && !f.Status.Valid() {
		respondError(c, errs.Validation("unknown status %q", f.Status))
		return
	}
	if f.ClientStatus != "" && !f.ClientStatus.Valid() {
		respondError(c, errs.Validation("unknown clientStatus %q", f.ClientStatus))
		return
	}
	var ok bool
	if f.ClientID, ok = queryID(c, "clientId"); !ok {
		return
	}
	if f.From, f.To, ok = queryDateRange(c); !ok {
		return
	}

	items, total, err := h.quotations.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, items, f.PageRequest, total)
}

func (h *QuotationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	q, err := h.quotations.FindByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	detail := quotationDetail{Quotation: q}
	client, err := h.clients.FindByID(ctx, q.ClientID)
	switch {
	case err == nil:
		detail.Client = client
	case errors.Is(err, errs.ErrNotFound):
	default:
		h.logger.Warn("Failed to populate quotation client", zap.String("quotation_id", id.String()), zap.Error(err))
	}
	respondOK(c, http.StatusOK, detail)
}

func (h *QuotationHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.QuotationInput
	if !bindJSON(c, &in) {
		return
	}
	q, err := h.quotations.Update(c.Request.Context(), id, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, q)
}

func (h *QuotationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.quotations.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}

// UpdateStatus handles PUT /api/quotations/:id/status.
func (h *QuotationHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.Status.Valid() {
		respondError(c, errs.Validation("unknown status %q", req.Status))
		return
	}
	q, err := h.quotations.UpdateStatus(c.Request.Context(), id, req.Status, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, q)
}

// ShareLink handles GET /api/quotations/:id/share-link?notify=true
func (h *QuotationHandler) ShareLink(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	link, err := h.quotations.IssueShareLink(c.Request.Context(), id, c.Query("notify") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, link)
}

func (h *QuotationHandler) Duplicate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := h.quotations.Duplicate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, q)
}

// Convert handles POST /api/quotations/:id/convert.
func (h *QuotationHandler) Convert(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoices.CreateFromQuotation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, inv)
}

// SubmitFeedback records a response on the client's behalf.
func (h *QuotationHandler) SubmitFeedback(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var resp models.ClientResponse
	if !bindJSON(c, &resp) {
		return
	}
	resp.IP = c.ClientIP()
	resp.UserAgent = c.Request.UserAgent()
	q, err := h.quotations.SubmitAdminFeedback(c.Request.Context(), id, &resp)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, q)
}

func (h *QuotationHandler) GetFeedback(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	fb, err := h.quotations.GetFeedback(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, fb)
}

func (h *QuotationHandler) ListFeedback(c *gin.Context) {
	page := pageRequest(c)
	items, total, err := h.quotations.ListWithFeedback(c.Request.Context(), page)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, items, page, total)
}

func (h *QuotationHandler) FeedbackStats(c *gin.Context) {
	stats, err := h.quotations.FeedbackStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

// PDF streams the rendered quotation. With ?archive=true a copy is also
// stored in the background.
func (h *QuotationHandler) PDF(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	doc, err := h.pdfs.Render(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if c.Query("archive") == "true" {
		task, err := jobs.NewPDFArchiveTask(jobs.PDFArchivePayload{QuotationID: id.String()})
		if err := jobs.Enqueue(ctx, h.queue, task, err); err != nil {
			h.logger.Warn("Failed to enqueue PDF archive", zap.String("quotation_id", id.String()), zap.Error(err))
		}
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.Data(http.StatusOK, "application/pdf", doc.Content)
}

// PDFURL archives the quotation and returns a presigned download URL.
func (h *QuotationHandler) PDFURL(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	url, err := h.pdfs.DownloadURL(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"url": url})
}
