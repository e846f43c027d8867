package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

type TemplateHandler struct {
	templates services.ITemplateService
}

func NewTemplateHandler(templates services.ITemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

func (h *TemplateHandler) Create(c *gin.Context) {
	var in models.QuotationTemplate
	if !bindJSON(c, &in) {
		return
	}
	created, err := h.templates.Create(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, created)
}

// List handles GET /api/templates?projectType=
func (h *TemplateHandler) List(c *gin.Context) {
	items, err := h.templates.List(c.Request.Context(), c.Query("projectType"))
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []models.QuotationTemplate{}
	}
	respondOK(c, http.StatusOK, items)
}

func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tpl, err := h.templates.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tpl)
}

func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.QuotationTemplate
	if !bindJSON(c, &in) {
		return
	}
	updated, err := h.templates.Update(c.Request.Context(), id, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}
