package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
)

const maxLogoBytes = 2 << 20

type SettingsHandler struct {
	settings services.ISettingsService
	logger   *zap.Logger
}

func NewSettingsHandler(settings services.ISettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

type settingsView struct {
	models.Settings
	LogoURL string `json:"logoUrl,omitempty"`
}

func (h *SettingsHandler) view(c *gin.Context, s models.Settings) settingsView {
	v := settingsView{Settings: s}
	if s.Company.LogoKey == "" {
		return v
	}
	url, err := h.settings.LogoURL(c.Request.Context())
	if err != nil {
		h.logger.Warn("Failed to presign logo", zap.Error(err))
		return v
	}
	v.LogoURL = url
	return v
}

func (h *SettingsHandler) Get(c *gin.Context) {
	respondOK(c, http.StatusOK, h.view(c, h.settings.Get()))
}

func (h *SettingsHandler) Update(c *gin.Context) {
	var in models.Settings
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.settings.Update(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.view(c, *s))
}

// UploadLogo handles PUT /api/settings/logo with a multipart "logo" file.
func (h *SettingsHandler) UploadLogo(c *gin.Context) {
	fh, err := c.FormFile("logo")
	if err != nil {
		respondError(c, errs.Validation("logo file is required"))
		return
	}
	if fh.Size > maxLogoBytes {
		respondError(c, errs.Validation("logo must be at most %d bytes", maxLogoBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxLogoBytes+1))
	if err != nil {
		respondError(c, err)
		return
	}
	s, err := h.settings.UploadLogo(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.view(c, *s))
}
