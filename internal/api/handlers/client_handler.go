package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

type ClientHandler struct {
	clients services.IClientService
}

func NewClientHandler(clients services.IClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

func (h *ClientHandler) Create(c *gin.Context) {
	var in models.Client
	if !bindJSON(c, &in) {
		return
	}
	created, err := h.clients.Create(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, created)
}

// List handles GET /api/clients?search=&page=&limit=
func (h *ClientHandler) List(c *gin.Context) {
	f := models.ClientFilter{Search: c.Query("search"), PageRequest: pageRequest(c)}
	items, total, err := h.clients.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, items, f.PageRequest, total)
}

func (h *ClientHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	client, err := h.clients.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, client)
}

func (h *ClientHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in models.Client
	if !bindJSON(c, &in) {
		return
	}
	updated, err := h.clients.Update(c.Request.Context(), id, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

func (h *ClientHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.clients.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id})
}

// Reconcile handles POST /api/clients/:id/reconcile.
func (h *ClientHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	client, err := h.clients.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, client)
}
