package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

type PaymentHandler struct {
	payments services.IPaymentService
}

func NewPaymentHandler(payments services.IPaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Create handles POST /api/payments. The response carries the invoice as it
// stands after the payment.
func (h *PaymentHandler) Create(c *gin.Context) {
	var in models.PaymentInput
	if !bindJSON(c, &in) {
		return
	}
	p, inv, err := h.payments.Create(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"payment": p, "invoice": inv})
}

// List handles GET /api/payments?invoiceId=&clientId=
func (h *PaymentHandler) List(c *gin.Context) {
	f := models.PaymentFilter{PageRequest: pageRequest(c)}
	var ok bool
	if f.InvoiceID, ok = queryID(c, "invoiceId"); !ok {
		return
	}
	if f.ClientID, ok = queryID(c, "clientId"); !ok {
		return
	}
	items, total, err := h.payments.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, items, f.PageRequest, total)
}

func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.payments.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

func (h *PaymentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	inv, err := h.payments.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "invoice": inv})
}
