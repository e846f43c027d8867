package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

type InvoiceHandler struct {
	invoices services.IInvoiceService
}

func NewInvoiceHandler(invoices services.IInvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

type invoiceStatusRequest struct {
	Status models.PaymentStatus `json:"status" binding:"required"`
}

// Create handles POST /api/invoices. A body carrying fromQuotationId converts
// that quotation instead.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var in models.InvoiceInput
	if !bindJSON(c, &in) {
		return
	}
	inv, err := h.invoices.Create(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, inv)
}

// List handles GET /api/invoices?paymentStatus=&clientId=&from=&to=
func (h *InvoiceHandler) List(c *gin.Context) {
	f := models.InvoiceFilter{
		PaymentStatus: models.PaymentStatus(c.Query("paymentStatus")),
		PageRequest:   pageRequest(c),
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		respondError(c, errs.Validation("unknown paymentStatus %q", f.PaymentStatus))
		return
	}
	var ok bool
	if f.ClientID, ok = queryID(c, "clientId"); !ok {
		return
	}
	if f.From, f.To, ok = queryDateRange(c); !ok {
		return
	}
	items, total, err := h.invoices.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, items, f.PageRequest, total)
}

func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.invoices.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.InvoiceInput
	if !bindJSON(c, &in) {
		return
	}
	inv, err := h.invoices.Update(c.Request.Context(), id, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}

func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.invoices.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}

// UpdateStatus handles PUT /api/invoices/:id/status.
func (h *InvoiceHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req invoiceStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	if !req.Status.Valid() {
		respondError(c, errs.Validation("unknown status %q", req.Status))
		return
	}
	inv, err := h.invoices.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, inv)
}
