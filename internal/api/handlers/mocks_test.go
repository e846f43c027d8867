package handlers_test

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"

	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/services"
	"buildex/backoffice/internal/utils"
)

// --- Mocks ---

type MockQuotationService struct {
	mock.Mock
}

var _ services.IQuotationService = (*MockQuotationService)(nil)

func (m *MockQuotationService) quotation(args mock.Arguments) (*models.Quotation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Quotation), args.Error(1)
}

func (m *MockQuotationService) Create(ctx context.Context, in *models.QuotationInput) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, in))
}
func (m *MockQuotationService) FindByID(ctx context.Context, id utils.SixID) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, id))
}
func (m *MockQuotationService) List(ctx context.Context, f models.QuotationFilter) ([]models.Quotation, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]models.Quotation)
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockQuotationService) Update(ctx context.Context, id utils.SixID, in *models.QuotationInput) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, id, in))
}
func (m *MockQuotationService) Delete(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockQuotationService) Duplicate(ctx context.Context, id utils.SixID) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, id))
}
func (m *MockQuotationService) UpdateStatus(ctx context.Context, id utils.SixID, to models.QuotationStatus, ip string) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, id, to, ip))
}
func (m *MockQuotationService) IssueShareLink(ctx context.Context, id utils.SixID, notify bool) (*models.ShareLink, error) {
	args := m.Called(ctx, id, notify)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ShareLink), args.Error(1)
}
func (m *MockQuotationService) FindByToken(ctx context.Context, token string) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, token))
}
func (m *MockQuotationService) MarkViewed(ctx context.Context, id utils.SixID, ip string) error {
	return m.Called(ctx, id, ip).Error(0)
}
func (m *MockQuotationService) RespondByToken(ctx context.Context, token string, resp *models.ClientResponse) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, token, resp))
}
func (m *MockQuotationService) SubmitAdminFeedback(ctx context.Context, id utils.SixID, resp *models.ClientResponse) (*models.Quotation, error) {
	return m.quotation(m.Called(ctx, id, resp))
}
func (m *MockQuotationService) GetFeedback(ctx context.Context, id utils.SixID) (*models.FeedbackView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FeedbackView), args.Error(1)
}
func (m *MockQuotationService) ListWithFeedback(ctx context.Context, page models.PageRequest) ([]models.Quotation, int64, error) {
	args := m.Called(ctx, page)
	items, _ := args.Get(0).([]models.Quotation)
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockQuotationService) FeedbackStatistics(ctx context.Context) (*models.FeedbackStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FeedbackStats), args.Error(1)
}
func (m *MockQuotationService) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockQuotationService) LinkInvoice(ctx context.Context, id, invoiceID utils.SixID) error {
	return m.Called(ctx, id, invoiceID).Error(0)
}
func (m *MockQuotationService) UnlinkInvoice(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}

type MockClientService struct {
	mock.Mock
}

var _ services.IClientService = (*MockClientService)(nil)

func (m *MockClientService) client(args mock.Arguments) (*models.Client, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Client), args.Error(1)
}

func (m *MockClientService) Create(ctx context.Context, c *models.Client) (*models.Client, error) {
	return m.client(m.Called(ctx, c))
}
func (m *MockClientService) FindByID(ctx context.Context, id utils.SixID) (*models.Client, error) {
	return m.client(m.Called(ctx, id))
}
func (m *MockClientService) List(ctx context.Context, f models.ClientFilter) ([]models.Client, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]models.Client)
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockClientService) Update(ctx context.Context, id utils.SixID, in *models.Client) (*models.Client, error) {
	return m.client(m.Called(ctx, id, in))
}
func (m *MockClientService) Delete(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockClientService) AdjustCounters(ctx context.Context, id utils.SixID, delta models.ClientCounters) error {
	return m.Called(ctx, id, delta).Error(0)
}
func (m *MockClientService) Reconcile(ctx context.Context, id utils.SixID) (*models.Client, error) {
	return m.client(m.Called(ctx, id))
}
func (m *MockClientService) ListIDs(ctx context.Context) ([]utils.SixID, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]utils.SixID)
	return ids, args.Error(1)
}

type MockInvoiceService struct {
	mock.Mock
}

var _ services.IInvoiceService = (*MockInvoiceService)(nil)

func (m *MockInvoiceService) invoice(args mock.Arguments) (*models.Invoice, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoiceService) Create(ctx context.Context, in *models.InvoiceInput) (*models.Invoice, error) {
	return m.invoice(m.Called(ctx, in))
}
func (m *MockInvoiceService) CreateFromQuotation(ctx context.Context, quotationID utils.SixID) (*models.Invoice, error) {
	return m.invoice(m.Called(ctx, quotationID))
}
func (m *MockInvoiceService) FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	return m.invoice(m.Called(ctx, id))
}
func (m *MockInvoiceService) List(ctx context.Context, f models.InvoiceFilter) ([]models.Invoice, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]models.Invoice)
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockInvoiceService) Update(ctx context.Context, id utils.SixID, in *models.InvoiceInput) (*models.Invoice, error) {
	return m.invoice(m.Called(ctx, id, in))
}
func (m *MockInvoiceService) Delete(ctx context.Context, id utils.SixID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockInvoiceService) UpdateStatus(ctx context.Context, id utils.SixID, status models.PaymentStatus) (*models.Invoice, error) {
	return m.invoice(m.Called(ctx, id, status))
}
func (m *MockInvoiceService) ApplyPayment(ctx context.Context, id utils.SixID, delta float64) (*models.Invoice, error) {
	return m.invoice(m.Called(ctx, id, delta))
}
func (m *MockInvoiceService) RefreshOverdue(ctx context.Context, now time.Time) ([]models.Invoice, error) {
	args := m.Called(ctx, now)
	items, _ := args.Get(0).([]models.Invoice)
	return items, args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

var _ services.IPaymentService = (*MockPaymentService)(nil)

func (m *MockPaymentService) Create(ctx context.Context, in *models.PaymentInput) (*models.Payment, *models.Invoice, error) {
	args := m.Called(ctx, in)
	p, _ := args.Get(0).(*models.Payment)
	inv, _ := args.Get(1).(*models.Invoice)
	return p, inv, args.Error(2)
}
func (m *MockPaymentService) FindByID(ctx context.Context, id utils.SixID) (*models.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}
func (m *MockPaymentService) List(ctx context.Context, f models.PaymentFilter) ([]models.Payment, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]models.Payment)
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockPaymentService) Delete(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	args := m.Called(ctx, id)
	inv, _ := args.Get(0).(*models.Invoice)
	return inv, args.Error(1)
}

type MockSettingsService struct {
	mock.Mock
}

var _ services.ISettingsService = (*MockSettingsService)(nil)

func (m *MockSettingsService) Get() models.Settings {
	return m.Called().Get(0).(models.Settings)
}
func (m *MockSettingsService) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockSettingsService) Update(ctx context.Context, in *models.Settings) (*models.Settings, error) {
	args := m.Called(ctx, in)
	s, _ := args.Get(0).(*models.Settings)
	return s, args.Error(1)
}
func (m *MockSettingsService) UploadLogo(ctx context.Context, data []byte) (*models.Settings, error) {
	args := m.Called(ctx, data)
	s, _ := args.Get(0).(*models.Settings)
	return s, args.Error(1)
}
func (m *MockSettingsService) LogoURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockSettingsService) SubscribeToChanges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockAdminService struct {
	mock.Mock
}

var _ services.IAdminService = (*MockAdminService)(nil)

func (m *MockAdminService) Register(ctx context.Context, name, email, password string) (*models.Admin, error) {
	args := m.Called(ctx, name, email, password)
	a, _ := args.Get(0).(*models.Admin)
	return a, args.Error(1)
}
func (m *MockAdminService) Authenticate(ctx context.Context, email, password string) (*models.Admin, error) {
	args := m.Called(ctx, email, password)
	a, _ := args.Get(0).(*models.Admin)
	return a, args.Error(1)
}
func (m *MockAdminService) FindByID(ctx context.Context, id utils.SixID) (*models.Admin, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*models.Admin)
	return a, args.Error(1)
}
func (m *MockAdminService) SetActive(ctx context.Context, id utils.SixID, active bool) error {
	return m.Called(ctx, id, active).Error(0)
}

type MockRequestLogService struct {
	mock.Mock
}

var _ services.IRequestLogService = (*MockRequestLogService)(nil)

func (m *MockRequestLogService) Record(ctx context.Context, l *models.RequestLog) error {
	return m.Called(ctx, l).Error(0)
}
func (m *MockRequestLogService) List(ctx context.Context, f models.RequestLogFilter) ([]models.RequestLog, int64, error) {
	args := m.Called(ctx, f)
	items, _ := args.Get(0).([]models.RequestLog)
	return items, args.Get(1).(int64), args.Error(2)
}
func (m *MockRequestLogService) Stats(ctx context.Context, since time.Time) (*models.RequestLogStats, error) {
	args := m.Called(ctx, since)
	s, _ := args.Get(0).(*models.RequestLogStats)
	return s, args.Error(1)
}
func (m *MockRequestLogService) Live(ctx context.Context, after time.Time, limit int) ([]models.RequestLog, error) {
	args := m.Called(ctx, after, limit)
	items, _ := args.Get(0).([]models.RequestLog)
	return items, args.Error(1)
}
func (m *MockRequestLogService) Clear(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockQuotationPDFService struct {
	mock.Mock
}

var _ services.IQuotationPDFService = (*MockQuotationPDFService)(nil)

func (m *MockQuotationPDFService) Render(ctx context.Context, id utils.SixID) (*services.RenderedPDF, error) {
	args := m.Called(ctx, id)
	doc, _ := args.Get(0).(*services.RenderedPDF)
	return doc, args.Error(1)
}
func (m *MockQuotationPDFService) Archive(ctx context.Context, id utils.SixID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}
func (m *MockQuotationPDFService) DownloadURL(ctx context.Context, id utils.SixID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

// MockAsynqClient records enqueued tasks.
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}
