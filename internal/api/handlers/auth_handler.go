package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/api/middleware"
	"buildex/backoffice/internal/auth"
	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/services"
)

// AuthHandler issues JWTs for back-office accounts.
type AuthHandler struct {
	cfg    *config.Config
	admins services.IAdminService
}

func NewAuthHandler(cfg *config.Config, admins services.IAdminService) *AuthHandler {
	return &AuthHandler{cfg: cfg, admins: admins}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	admin, err := h.admins.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	token, expiresAt, err := auth.GenerateJWT(admin.ID, admin.Role, h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     token,
		"expiresAt": expiresAt,
		"admin":     admin,
	})
}

// Register handles POST /api/auth/register-public.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	admin, err := h.admins.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, admin)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := middleware.AdminIDFromContext(c)
	if !ok {
		respondError(c, errs.ErrUnauthorized)
		return
	}
	admin, err := h.admins.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, admin)
}
