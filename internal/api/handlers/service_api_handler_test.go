package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"buildex/backoffice/internal/api/handlers"
	"buildex/backoffice/internal/email"
	"buildex/backoffice/internal/jobs"
)

type serviceApiFixture struct {
	router   http.Handler
	rdb      *redis.Client
	settings *MockSettingsService
	queue    *MockAsynqClient
	shutdown chan struct{}
}

func newServiceApiFixture(t *testing.T) *serviceApiFixture {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &serviceApiFixture{
		rdb:      rdb,
		settings: new(MockSettingsService),
		queue:    new(MockAsynqClient),
		shutdown: make(chan struct{}, 1),
	}
	h := handlers.NewServiceApiHandler(rdb, f.settings, f.queue, f.shutdown, testLogger())
	r := newTestRouter()
	r.POST("/api", h.HandleRequest)
	f.router = r
	return f
}

func decodeApiResponse(t *testing.T, body []byte) handlers.JsonApiResponse {
	t.Helper()
	var resp handlers.JsonApiResponse
	require.NoError(t, json.Unmarshal(body, &resp), string(body))
	return resp
}

func TestServiceApi_GetTestEmail(t *testing.T) {
	f := newServiceApiFixture(t)
	sender := email.NewRedisSender(f.rdb, "noreply@buildex.test", testLogger())
	require.NoError(t, sender.Send(context.Background(), []string{"Client@Example.com"}, "Quotation QT-2025-0001", []byte("Hello")))

	w := perform(f.router, http.MethodPost, "/api", map[string]interface{}{
		"method":    "getTestEmail",
		"arguments": []string{"client@example.com"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeApiResponse(t, w.Body.Bytes())
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Quotation QT-2025-0001", data["subject"])
	assert.Equal(t, "noreply@buildex.test", data["from"])
}

func TestServiceApi_GetTestEmail_NotFound(t *testing.T) {
	f := newServiceApiFixture(t)

	w := perform(f.router, http.MethodPost, "/api", map[string]interface{}{
		"method":    "getTestEmail",
		"arguments": []string{"nobody@example.com"},
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeApiResponse(t, w.Body.Bytes()).Error, "nobody@example.com")
}

func TestServiceApi_GetTestEmail_BadArguments(t *testing.T) {
	f := newServiceApiFixture(t)

	w := perform(f.router, http.MethodPost, "/api", map[string]interface{}{
		"method":    "getTestEmail",
		"arguments": map[string]string{"email": "x@example.com"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceApi_UnknownMethod(t *testing.T) {
	f := newServiceApiFixture(t)

	w := perform(f.router, http.MethodPost, "/api", map[string]string{"method": "dropDatabase"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Unknown service method: dropDatabase", decodeApiResponse(t, w.Body.Bytes()).Error)
}

func TestServiceApi_InvalidBody(t *testing.T) {
	f := newServiceApiFixture(t)

	w := perform(f.router, http.MethodPost, "/api", "{")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServiceApi_Shutdown(t *testing.T) {
	f := newServiceApiFixture(t)

	w := perform(f.router, http.MethodPost, "/api", map[string]string{"method": "shutdown"})
	require.Equal(t, http.StatusOK, w.Code)
	select {
	case <-f.shutdown:
	default:
		t.Fatal("shutdown was not signalled")
	}

	// A second request while the first is still pending does not block.
	f.shutdown <- struct{}{}
	w = perform(f.router, http.MethodPost, "/api", map[string]string{"method": "shutdown"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServiceApi_ReloadSettings(t *testing.T) {
	f := newServiceApiFixture(t)
	f.settings.On("Reload", mock.Anything).Return(nil).Once()
	f.settings.On("Reload", mock.Anything).Return(errors.New("mongo down")).Once()

	w := perform(f.router, http.MethodPost, "/api", map[string]string{"method": "reloadSettings"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(f.router, http.MethodPost, "/api", map[string]string{"method": "reloadSettings"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	f.settings.AssertExpectations(t)
}

func TestServiceApi_ReconcileClients(t *testing.T) {
	f := newServiceApiFixture(t)
	f.queue.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		var p jobs.ReconcilePayload
		return task.Type() == jobs.TypeClientReconcile &&
			json.Unmarshal(task.Payload(), &p) == nil &&
			p.ClientID == "ABCDEFGH12"
	})).Return(&asynq.TaskInfo{}, nil)

	w := perform(f.router, http.MethodPost, "/api", map[string]interface{}{
		"method":    "reconcileClients",
		"arguments": []string{"ABCDEFGH12"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.queue.AssertExpectations(t)
}

func TestServiceApi_ReconcileClients_TooManyArguments(t *testing.T) {
	f := newServiceApiFixture(t)

	w := perform(f.router, http.MethodPost, "/api", map[string]interface{}{
		"method":    "reconcileClients",
		"arguments": []string{"a", "b"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.queue.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}
