package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"buildex/backoffice/internal/email"
	"buildex/backoffice/internal/jobs"
)

const (
	testEmailPollAttempts = 10
	testEmailPollInterval = 200 * time.Millisecond
)

// JsonApiRequest is the body of POST /api on the service port.
type JsonApiRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type JsonApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ApiError carries the HTTP status a service method failed with.
type ApiError struct {
	Status  int
	Message string
}

func (e *ApiError) Error() string {
	return e.Message
}

func NewApiError(status int, format string, args ...interface{}) *ApiError {
	return &ApiError{Status: status, Message: fmt.Sprintf(format, args...)}
}

type apiMethodFunc func(c *gin.Context, args json.RawMessage) (interface{}, *ApiError)

// SettingsReloader re-reads settings from the database.
type SettingsReloader interface {
	Reload(ctx context.Context) error
}

// ServiceApiHandler serves operational methods on the internal service port.
type ServiceApiHandler struct {
	rdb      *redis.Client
	settings SettingsReloader
	queue    jobs.Enqueuer
	shutdown chan<- struct{}
	logger   *zap.Logger
	methods  map[string]apiMethodFunc
}

func NewServiceApiHandler(rdb *redis.Client, settings SettingsReloader, queue jobs.Enqueuer, shutdown chan<- struct{}, logger *zap.Logger) *ServiceApiHandler {
	h := &ServiceApiHandler{
		rdb:      rdb,
		settings: settings,
		queue:    queue,
		shutdown: shutdown,
		logger:   logger,
	}
	h.methods = map[string]apiMethodFunc{
		"shutdown":         h.shutdownMethod,
		"getTestEmail":     h.getTestEmail,
		"reloadSettings":   h.reloadSettings,
		"reconcileClients": h.reconcileClients,
	}
	return h
}

// HandleRequest is the entry point for POST /api.
func (h *ServiceApiHandler) HandleRequest(c *gin.Context) {
	var req JsonApiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, JsonApiResponse{Error: "Invalid request format"})
		return
	}
	method, ok := h.methods[req.Method]
	if !ok {
		c.JSON(http.StatusNotFound, JsonApiResponse{Error: fmt.Sprintf("Unknown service method: %s", req.Method)})
		return
	}
	data, apiErr := method(c, req.Arguments)
	if apiErr != nil {
		c.JSON(apiErr.Status, JsonApiResponse{Error: apiErr.Message})
		return
	}
	c.JSON(http.StatusOK, JsonApiResponse{Success: true, Data: data})
}

func (h *ServiceApiHandler) shutdownMethod(c *gin.Context, _ json.RawMessage) (interface{}, *ApiError) {
	h.logger.Info("Received shutdown command via service API")
	select {
	case h.shutdown <- struct{}{}:
	default:
		h.logger.Info("Shutdown already signalled")
	}
	return "Shutdown initiated", nil
}

// getTestEmail expects ["recipient@example.com"] and polls briefly for the
// newest captured message.
func (h *ServiceApiHandler) getTestEmail(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var params []string
	if err := json.Unmarshal(args, &params); err != nil || len(params) != 1 || params[0] == "" {
		return nil, NewApiError(http.StatusBadRequest, "Invalid arguments: expected JSON array [email]")
	}
	if h.rdb == nil {
		return nil, NewApiError(http.StatusServiceUnavailable, "Redis is not configured")
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for i := 0; i < testEmailPollAttempts; i++ {
		msg, err := email.LatestMockEmail(ctx, h.rdb, params[0])
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, redis.Nil) {
			h.logger.Error("Failed to read test email", zap.String("to", params[0]), zap.Error(err))
			return nil, NewApiError(http.StatusInternalServerError, "Redis error")
		}
		select {
		case <-ctx.Done():
			return nil, NewApiError(http.StatusNotFound, "Test email not found for %s", params[0])
		case <-time.After(testEmailPollInterval):
		}
	}
	return nil, NewApiError(http.StatusNotFound, "Test email not found for %s", params[0])
}

func (h *ServiceApiHandler) reloadSettings(c *gin.Context, _ json.RawMessage) (interface{}, *ApiError) {
	if err := h.settings.Reload(c.Request.Context()); err != nil {
		h.logger.Error("Failed to reload settings", zap.Error(err))
		return nil, NewApiError(http.StatusInternalServerError, "Failed to reload settings")
	}
	return "Settings reloaded", nil
}

// reconcileClients accepts an optional ["clientId"]; without it every client is queued.
func (h *ServiceApiHandler) reconcileClients(c *gin.Context, args json.RawMessage) (interface{}, *ApiError) {
	var params []string
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil || len(params) > 1 {
			return nil, NewApiError(http.StatusBadRequest, "Invalid arguments: expected JSON array [clientId] or nothing")
		}
	}
	payload := jobs.ReconcilePayload{}
	if len(params) == 1 {
		payload.ClientID = params[0]
	}
	task, err := jobs.NewReconcileTask(payload)
	if err := jobs.Enqueue(c.Request.Context(), h.queue, task, err); err != nil {
		h.logger.Error("Failed to enqueue reconcile", zap.Error(err))
		return nil, NewApiError(http.StatusInternalServerError, "Failed to enqueue reconcile")
	}
	return "Reconcile queued", nil
}
