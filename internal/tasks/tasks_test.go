package tasks_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/tasks"
	"buildex/backoffice/internal/utils"
)

// --- Mocks ---

type MockEmailSender struct{ mock.Mock }

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	return m.Called(ctx, to, subject, rawMessage).Error(0)
}

type MockRenderer struct{ mock.Mock }

func (m *MockRenderer) Render(ctx context.Context, templateID, locale string, data map[string]interface{}) (string, string, error) {
	args := m.Called(ctx, templateID, locale, data)
	return args.String(0), args.String(1), args.Error(2)
}

type MockArchiver struct{ mock.Mock }

func (m *MockArchiver) Archive(ctx context.Context, id utils.SixID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type MockExpirer struct{ mock.Mock }

func (m *MockExpirer) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type MockRefresher struct{ mock.Mock }

func (m *MockRefresher) RefreshOverdue(ctx context.Context, now time.Time) ([]models.Invoice, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Invoice), args.Error(1)
}

type MockClients struct{ mock.Mock }

func (m *MockClients) FindByID(ctx context.Context, id utils.SixID) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClients) Reconcile(ctx context.Context, id utils.SixID) (*models.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClients) ListIDs(ctx context.Context) ([]utils.SixID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]utils.SixID), args.Error(1)
}

type MockNotifications struct{ mock.Mock }

func (m *MockNotifications) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	args := m.Called(ctx, n)
	return n, args.Error(0)
}

type MockDashboard struct{ mock.Mock }

func (m *MockDashboard) Invalidate(ctx context.Context) { m.Called(ctx) }

type staticSettings struct{ s models.Settings }

func (s staticSettings) Get() models.Settings { return s.s }

type recordingQueue struct{ tasks []*asynq.Task }

func (q *recordingQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t1"}, nil
}

func newProcessor(deps tasks.Deps) *tasks.TaskProcessor {
	cfg := &config.Config{SmtpFromAddress: "noreply@buildex.test"}
	return tasks.NewTaskProcessor(cfg, deps, zap.NewNop())
}

func emailTask(t *testing.T, p jobs.EmailTaskPayload) *asynq.Task {
	task, err := jobs.NewEmailTask(p)
	require.NoError(t, err)
	return task
}

// --- Tests ---

func TestHandleEmailDeliveryTask_Success(t *testing.T) {
	sender := new(MockEmailSender)
	renderer := new(MockRenderer)
	p := newProcessor(tasks.Deps{EmailSender: sender, EmailTemplates: renderer})

	data := map[string]interface{}{"client_name": "Asha"}
	renderer.On("Render", mock.Anything, jobs.EmailQuotationShared, "en-IN", data).
		Return("Quotation QT-1", "Hello Asha", nil)
	sender.On("Send", mock.Anything, []string{"asha@x.test"}, "Quotation QT-1", mock.MatchedBy(func(raw []byte) bool {
		s := string(raw)
		return strings.Contains(s, "To: asha@x.test\r\n") &&
			strings.Contains(s, "From: noreply@buildex.test\r\n") &&
			strings.Contains(s, "\r\n\r\nHello Asha")
	})).Return(nil)

	task := emailTask(t, jobs.EmailTaskPayload{To: "asha@x.test", TemplateID: jobs.EmailQuotationShared, Data: data})
	err := p.HandleEmailDeliveryTask(context.Background(), task)

	assert.NoError(t, err)
	renderer.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestHandleEmailDeliveryTask_UnknownTemplateSkipsRetry(t *testing.T) {
	sender := new(MockEmailSender)
	renderer := new(MockRenderer)
	p := newProcessor(tasks.Deps{EmailSender: sender, EmailTemplates: renderer})

	renderer.On("Render", mock.Anything, "nope", "fr-FR", mock.Anything).
		Return("", "", errs.NotFound("email template"))

	task := emailTask(t, jobs.EmailTaskPayload{To: "a@x.test", TemplateID: "nope", Locale: "fr-FR"})
	err := p.HandleEmailDeliveryTask(context.Background(), task)

	assert.ErrorIs(t, err, asynq.SkipRetry)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEmailDeliveryTask_SendFailureRetries(t *testing.T) {
	sender := new(MockEmailSender)
	renderer := new(MockRenderer)
	p := newProcessor(tasks.Deps{EmailSender: sender, EmailTemplates: renderer})

	boom := errors.New("smtp down")
	renderer.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("s", "b", nil)
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(boom)

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, jobs.EmailTaskPayload{To: "a@x.test", TemplateID: "x"}))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleEmailDeliveryTask_BadPayload(t *testing.T) {
	p := newProcessor(tasks.Deps{})
	err := p.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(jobs.TypeEmailDelivery, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = p.HandleEmailDeliveryTask(context.Background(), emailTask(t, jobs.EmailTaskPayload{TemplateID: "x"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandlePDFArchiveTask(t *testing.T) {
	archiver := new(MockArchiver)
	p := newProcessor(tasks.Deps{PDFs: archiver})
	id := utils.NewSixID()
	gone := utils.NewSixID()

	archiver.On("Archive", mock.Anything, id).Return("quotations/QT-1.pdf", nil)
	archiver.On("Archive", mock.Anything, gone).Return("", errs.NotFound("quotation"))

	task, err := jobs.NewPDFArchiveTask(jobs.PDFArchivePayload{QuotationID: id.String()})
	require.NoError(t, err)
	assert.NoError(t, p.HandlePDFArchiveTask(context.Background(), task))

	task, err = jobs.NewPDFArchiveTask(jobs.PDFArchivePayload{QuotationID: gone.String()})
	require.NoError(t, err)
	assert.ErrorIs(t, p.HandlePDFArchiveTask(context.Background(), task), asynq.SkipRetry)

	task, err = jobs.NewPDFArchiveTask(jobs.PDFArchivePayload{QuotationID: "bad"})
	require.NoError(t, err)
	assert.ErrorIs(t, p.HandlePDFArchiveTask(context.Background(), task), asynq.SkipRetry)
}

func TestHandleExpirySweepTask(t *testing.T) {
	expirer := new(MockExpirer)
	dash := new(MockDashboard)
	p := newProcessor(tasks.Deps{Quotations: expirer, Dashboard: dash})

	expirer.On("ExpireStale", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(3), nil).Once()
	dash.On("Invalidate", mock.Anything).Once()
	assert.NoError(t, p.HandleExpirySweepTask(context.Background(), jobs.NewSweepTask(jobs.TypeQuotationExpirySweep)))

	expirer.On("ExpireStale", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil).Once()
	assert.NoError(t, p.HandleExpirySweepTask(context.Background(), jobs.NewSweepTask(jobs.TypeQuotationExpirySweep)))

	expirer.AssertExpectations(t)
	dash.AssertNumberOfCalls(t, "Invalidate", 1)
}

func TestHandleInvoiceCheckOverdueTask(t *testing.T) {
	refresher := new(MockRefresher)
	clients := new(MockClients)
	notifications := new(MockNotifications)
	queue := &recordingQueue{}
	p := newProcessor(tasks.Deps{
		Invoices:      refresher,
		Clients:       clients,
		Notifications: notifications,
		Settings:      staticSettings{s: models.Settings{Company: models.CompanyProfile{Name: "BuildEx"}}},
		Queue:         queue,
	})

	withEmail := models.Invoice{InvoiceNumber: "INV-1", ClientID: utils.NewSixID(), BalanceAmount: 1500, DueDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	withEmail.GenID()
	noEmail := models.Invoice{InvoiceNumber: "INV-2", ClientID: utils.NewSixID(), BalanceAmount: 10}
	noEmail.GenID()

	refresher.On("RefreshOverdue", mock.Anything, mock.Anything).Return([]models.Invoice{withEmail, noEmail}, nil)
	clients.On("FindByID", mock.Anything, withEmail.ClientID).Return(&models.Client{Name: "Asha", Email: "asha@x.test"}, nil)
	clients.On("FindByID", mock.Anything, noEmail.ClientID).Return(&models.Client{Name: "Ravi"}, nil)
	notifications.On("Create", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.Type == models.NotificationWarning && n.Entity != nil && n.Entity.Kind == "invoice"
	})).Return(nil).Twice()

	require.NoError(t, p.HandleInvoiceCheckOverdueTask(context.Background(), jobs.NewSweepTask(jobs.TypeInvoiceCheckOverdue)))

	notifications.AssertExpectations(t)
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, jobs.TypeEmailDelivery, queue.tasks[0].Type())
	var payload jobs.EmailTaskPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, "asha@x.test", payload.To)
	assert.Equal(t, jobs.EmailInvoiceOverdue, payload.TemplateID)
	assert.Equal(t, "INV-1", payload.Data["invoice_number"])
	assert.Equal(t, "1500.00", payload.Data["balance"])
	assert.Equal(t, "BuildEx", payload.Data["company_name"])
}

func TestHandleClientReconcileTask(t *testing.T) {
	clients := new(MockClients)
	p := newProcessor(tasks.Deps{Clients: clients})
	a, b, c := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	boom := errors.New("db down")

	clients.On("ListIDs", mock.Anything).Return([]utils.SixID{a, b, c}, nil)
	clients.On("Reconcile", mock.Anything, a).Return(&models.Client{}, nil)
	clients.On("Reconcile", mock.Anything, b).Return(nil, errs.NotFound("client"))
	clients.On("Reconcile", mock.Anything, c).Return(nil, boom)

	all, err := jobs.NewReconcileTask(jobs.ReconcilePayload{})
	require.NoError(t, err)
	err = p.HandleClientReconcileTask(context.Background(), all)
	assert.ErrorIs(t, err, boom)
	clients.AssertNumberOfCalls(t, "Reconcile", 3)

	one, err := jobs.NewReconcileTask(jobs.ReconcilePayload{ClientID: a.String()})
	require.NoError(t, err)
	assert.NoError(t, p.HandleClientReconcileTask(context.Background(), one))
	clients.AssertNumberOfCalls(t, "ListIDs", 1)
}

func TestMuxRegistersEveryTask(t *testing.T) {
	expirer := new(MockExpirer)
	expirer.On("ExpireStale", mock.Anything, mock.Anything).Return(int64(0), nil)
	p := newProcessor(tasks.Deps{Quotations: expirer})

	mux := p.Mux()
	for _, typ := range []string{
		jobs.TypeEmailDelivery,
		jobs.TypeQuotationPDFArchive,
		jobs.TypeQuotationExpirySweep,
		jobs.TypeInvoiceCheckOverdue,
		jobs.TypeClientReconcile,
	} {
		h, pattern := mux.Handler(asynq.NewTask(typ, nil))
		assert.Equal(t, typ, pattern)
		assert.NotNil(t, h)
	}
	assert.NoError(t, mux.ProcessTask(context.Background(), jobs.NewSweepTask(jobs.TypeQuotationExpirySweep)))
}
