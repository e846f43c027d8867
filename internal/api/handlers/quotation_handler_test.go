package handlers_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"buildex/backoffice/internal/api/handlers"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
	"buildex/backoffice/internal/utils"
)

type quotationFixture struct {
	quotations *MockQuotationService
	clients    *MockClientService
	invoices   *MockInvoiceService
	pdfs       *MockQuotationPDFService
	queue      *MockAsynqClient
	router     http.Handler
}

func newQuotationFixture() *quotationFixture {
	f := &quotationFixture{
		quotations: new(MockQuotationService),
		clients:    new(MockClientService),
		invoices:   new(MockInvoiceService),
		pdfs:       new(MockQuotationPDFService),
		queue:      new(MockAsynqClient),
	}
	h := handlers.NewQuotationHandler(f.quotations, f.clients, f.invoices, f.pdfs, f.queue, testLogger())
	r := newTestRouter()
	r.GET("/quotations", h.List)
	r.GET("/quotations/feedback/stats", h.FeedbackStats)
	r.GET("/quotations/:id", h.Get)
	r.PUT("/quotations/:id/status", h.UpdateStatus)
	r.GET("/quotations/:id/share-link", h.ShareLink)
	r.POST("/quotations/:id/convert", h.Convert)
	r.POST("/quotations/:id/feedback", h.SubmitFeedback)
	r.POST("/quotations/:id/pdf", h.PDF)
	r.GET("/quotations/:id/pdf/url", h.PDFURL)
	f.router = r
	return f
}

func (f *quotationFixture) assertExpectations(t *testing.T) {
	f.quotations.AssertExpectations(t)
	f.clients.AssertExpectations(t)
	f.invoices.AssertExpectations(t)
	f.pdfs.AssertExpectations(t)
	f.queue.AssertExpectations(t)
}

func TestQuotationHandler_List_EmptyIsArray(t *testing.T) {
	f := newQuotationFixture()
	f.quotations.On("List", mock.Anything, mock.Anything).Return(nil, int64(0), nil)

	w := perform(f.router, http.MethodGet, "/quotations", nil)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.True(t, env.Success)
	assert.JSONEq(t, `[]`, string(env.Data))
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.Page)
	assert.Equal(t, int64(0), env.Pagination.Total)
}

func TestQuotationHandler_List_Filters(t *testing.T) {
	f := newQuotationFixture()
	clientID := utils.NewSixID()
	f.quotations.On("List", mock.Anything, mock.MatchedBy(func(filter models.QuotationFilter) bool {
		return filter.Status == models.QuotationSent &&
			filter.ClientStatus == models.ClientViewed &&
			filter.ClientID != nil && *filter.ClientID == clientID &&
			filter.Search == "villa" &&
			filter.From != nil && filter.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) &&
			filter.To != nil && filter.To.Equal(time.Date(2025, 3, 31, 23, 59, 59, 999999999, time.UTC)) &&
			filter.Page == 2 && filter.Limit == 5
	})).Return([]models.Quotation{{QuotationNumber: "QT-2025-0001"}}, int64(6), nil)

	path := fmt.Sprintf("/quotations?status=sent&clientStatus=viewed&clientId=%s&search=villa&from=2025-03-01&to=2025-03-31&page=2&limit=5", clientID)
	w := perform(f.router, http.MethodGet, path, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	assert.Equal(t, int64(6), env.Pagination.Total)
	assert.Equal(t, 2, env.Pagination.Page)
	f.assertExpectations(t)
}

func TestQuotationHandler_List_RejectsBadInput(t *testing.T) {
	for _, path := range []string{
		"/quotations?status=archived",
		"/quotations?clientStatus=maybe",
		"/quotations?clientId=not-an-id",
		"/quotations?from=yesterday",
	} {
		f := newQuotationFixture()
		w := perform(f.router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.False(t, decodeEnvelope(t, w).Success, path)
		f.quotations.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	}
}

func TestQuotationHandler_Get_PopulatesClient(t *testing.T) {
	f := newQuotationFixture()
	q := &models.Quotation{QuotationNumber: "QT-2025-0007", ClientID: utils.NewSixID()}
	q.ID = utils.NewSixID()
	f.quotations.On("FindByID", mock.Anything, q.ID).Return(q, nil)
	f.clients.On("FindByID", mock.Anything, q.ClientID).Return(&models.Client{Name: "Asha Rao"}, nil)

	w := perform(f.router, http.MethodGet, "/quotations/"+q.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		QuotationNumber string `json:"quotationNumber"`
		Client          struct {
			Name string `json:"name"`
		} `json:"client"`
	}
	decodeData(t, decodeEnvelope(t, w), &body)
	assert.Equal(t, "QT-2025-0007", body.QuotationNumber)
	assert.Equal(t, "Asha Rao", body.Client.Name)
	f.assertExpectations(t)
}

func TestQuotationHandler_Get_MissingClientStillServes(t *testing.T) {
	f := newQuotationFixture()
	q := &models.Quotation{QuotationNumber: "QT-2025-0008", ClientID: utils.NewSixID()}
	q.ID = utils.NewSixID()
	f.quotations.On("FindByID", mock.Anything, q.ID).Return(q, nil)
	f.clients.On("FindByID", mock.Anything, q.ClientID).Return(nil, errs.NotFound("client"))

	w := perform(f.router, http.MethodGet, "/quotations/"+q.ID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"client":`)
}

func TestQuotationHandler_Get_NotFound(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.quotations.On("FindByID", mock.Anything, id).Return(nil, errs.NotFound("quotation"))

	w := perform(f.router, http.MethodGet, "/quotations/"+id.String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "quotation not found", env.Error)
}

func TestQuotationHandler_Get_InvalidID(t *testing.T) {
	f := newQuotationFixture()
	w := perform(f.router, http.MethodGet, "/quotations/short", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.quotations.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestQuotationHandler_UpdateStatus(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	updated := &models.Quotation{Status: models.QuotationSent}
	f.quotations.On("UpdateStatus", mock.Anything, id, models.QuotationSent, "192.0.2.10").Return(updated, nil)

	w := perform(f.router, http.MethodPut, "/quotations/"+id.String()+"/status", map[string]string{"status": "sent"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.assertExpectations(t)
}

func TestQuotationHandler_UpdateStatus_IllegalTransitionIsConflict(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.quotations.On("UpdateStatus", mock.Anything, id, models.QuotationAccepted, mock.Anything).
		Return(nil, fmt.Errorf("%w: draft -> accepted", errs.ErrIllegalTransition))

	w := perform(f.router, http.MethodPut, "/quotations/"+id.String()+"/status", map[string]string{"status": "accepted"})

	assert.Equal(t, http.StatusConflict, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "draft -> accepted")
}

func TestQuotationHandler_UpdateStatus_UnknownStatus(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()

	w := perform(f.router, http.MethodPut, "/quotations/"+id.String()+"/status", map[string]string{"status": "archived"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.quotations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestQuotationHandler_InternalErrorIsGeneric(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.quotations.On("FindByID", mock.Anything, id).Return(nil, errors.New("connection reset by peer"))

	w := perform(f.router, http.MethodGet, "/quotations/"+id.String(), nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "Internal server error", env.Error)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestQuotationHandler_ShareLink_Notify(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	link := &models.ShareLink{AccessToken: "tok", ShareableURL: "http://localhost:5173/quotation/view/tok"}
	f.quotations.On("IssueShareLink", mock.Anything, id, true).Return(link, nil)

	w := perform(f.router, http.MethodGet, "/quotations/"+id.String()+"/share-link?notify=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body models.ShareLink
	decodeData(t, decodeEnvelope(t, w), &body)
	assert.Equal(t, "tok", body.AccessToken)
	f.assertExpectations(t)
}

func TestQuotationHandler_Convert_Conflict(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.invoices.On("CreateFromQuotation", mock.Anything, id).
		Return(nil, fmt.Errorf("quotation already invoiced: %w", errs.ErrConflict))

	w := perform(f.router, http.MethodPost, "/quotations/"+id.String()+"/convert", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestQuotationHandler_SubmitFeedback_StampsRequester(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.quotations.On("SubmitAdminFeedback", mock.Anything, id, mock.MatchedBy(func(r *models.ClientResponse) bool {
		return r.Action == models.ActionRequestChanges && r.IP == "192.0.2.10" && len(r.RequestedChanges) == 1
	})).Return(&models.Quotation{ClientStatus: models.ClientChangesRequested}, nil)

	w := perform(f.router, http.MethodPost, "/quotations/"+id.String()+"/feedback", map[string]interface{}{
		"action":           "request-changes",
		"requestedChanges": []string{"Use vitrified tiles"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	f.assertExpectations(t)
}

func TestQuotationHandler_PDF_StreamsAndArchives(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.pdfs.On("Render", mock.Anything, id).Return(&services.RenderedPDF{Filename: "QT-2025-0001.pdf", Content: []byte("%PDF-1.7")}, nil)
	f.queue.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == jobs.TypeQuotationPDFArchive
	})).Return(&asynq.TaskInfo{}, nil)

	w := perform(f.router, http.MethodPost, "/quotations/"+id.String()+"/pdf?archive=true", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="QT-2025-0001.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.7", w.Body.String())
	f.assertExpectations(t)
}

func TestQuotationHandler_PDF_EnqueueFailureStillStreams(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.pdfs.On("Render", mock.Anything, id).Return(&services.RenderedPDF{Filename: "q.pdf", Content: []byte("%PDF")}, nil)
	f.queue.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	w := perform(f.router, http.MethodPost, "/quotations/"+id.String()+"/pdf?archive=true", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuotationHandler_PDF_RendererUnavailable(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.pdfs.On("Render", mock.Anything, id).Return(nil, fmt.Errorf("render: %w", errs.ErrUnavailable))

	w := perform(f.router, http.MethodPost, "/quotations/"+id.String()+"/pdf", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	f.queue.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}

func TestQuotationHandler_PDFURL(t *testing.T) {
	f := newQuotationFixture()
	id := utils.NewSixID()
	f.pdfs.On("DownloadURL", mock.Anything, id).Return("https://bucket.example/q.pdf?sig=1", nil)

	w := perform(f.router, http.MethodGet, "/quotations/"+id.String()+"/pdf/url", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://bucket.example/q.pdf?sig=1"}`, string(decodeEnvelope(t, w).Data))
}

func TestQuotationHandler_FeedbackStats(t *testing.T) {
	f := newQuotationFixture()
	f.quotations.On("FeedbackStatistics", mock.Anything).Return(&models.FeedbackStats{TotalWithFeedback: 4, ApprovalRate: 50}, nil)

	w := perform(f.router, http.MethodGet, "/quotations/feedback/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var stats models.FeedbackStats
	decodeData(t, decodeEnvelope(t, w), &stats)
	assert.Equal(t, int64(4), stats.TotalWithFeedback)
	assert.Equal(t, 50.0, stats.ApprovalRate)
}
