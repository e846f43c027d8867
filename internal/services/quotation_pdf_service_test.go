package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/pdf"
	"buildex/backoffice/internal/storage"
	"buildex/backoffice/internal/utils"
)

// Only the methods the pdf service calls are implemented; the embedded nil
// interfaces panic if anything else is reached.
type stubQuotations struct {
	IQuotationService
	byID map[utils.SixID]*models.Quotation
}

func (s *stubQuotations) FindByID(_ context.Context, id utils.SixID) (*models.Quotation, error) {
	if q, ok := s.byID[id]; ok {
		return q, nil
	}
	return nil, errs.NotFound("quotation")
}

type stubClients struct {
	IClientService
	client *models.Client
	err    error
}

func (s *stubClients) FindByID(context.Context, utils.SixID) (*models.Client, error) {
	return s.client, s.err
}

type stubSettings struct {
	ISettingsService
	settings models.Settings
	logoURL  string
}

func (s *stubSettings) Get() models.Settings { return s.settings }
func (s *stubSettings) LogoURL(context.Context) (string, error) {
	return s.logoURL, nil
}

type fakeRenderer struct {
	html []byte
	err  error
}

func (f *fakeRenderer) RenderHTML(_ context.Context, html []byte) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type fakeStorage struct {
	objects map[string][]byte
}

func (f *fakeStorage) PutObject(_ context.Context, key, _ string, body []byte) error {
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = body
	return nil
}
func (f *fakeStorage) PresignGetURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://bucket.example.com/%s?ttl=%d", key, int(ttl.Seconds())), nil
}
func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

type pdfFixture struct {
	svc      IQuotationPDFService
	renderer *fakeRenderer
	store    *fakeStorage
	q        *models.Quotation
}

func newPDFFixture(t *testing.T, withRenderer, withStore bool) *pdfFixture {
	t.Helper()
	q := &models.Quotation{
		QuotationNumber: "QT-2025-0007",
		Items:           []models.CostItem{{Name: "Cement", Quantity: 100, Rate: 400, Amount: 40000}},
		Summary:         models.Summary{Subtotal: 40000, GSTRate: 18, GSTAmount: 7200, GrandTotal: 47200},
		Status:          models.QuotationSent,
	}
	q.ID = utils.NewSixID()

	f := &pdfFixture{q: q}
	settings := models.DefaultSettings()
	settings.Company.Name = "BuildEx Constructions"

	var renderer pdf.Renderer
	if withRenderer {
		f.renderer = &fakeRenderer{}
		renderer = f.renderer
	}
	var store storage.IS3Storage
	if withStore {
		f.store = &fakeStorage{}
		store = f.store
	}
	f.svc = NewQuotationPDFService(
		&stubQuotations{byID: map[utils.SixID]*models.Quotation{q.ID: q}},
		&stubClients{client: &models.Client{Name: "Asha Rao"}},
		&stubSettings{settings: settings},
		renderer, store, zap.NewNop())
	return f
}

func TestQuotationPDF_Render(t *testing.T) {
	f := newPDFFixture(t, true, false)

	out, err := f.svc.Render(context.Background(), f.q.ID)

	require.NoError(t, err)
	assert.Equal(t, "QT-2025-0007.pdf", out.Filename)
	assert.Equal(t, []byte("%PDF-1.7 fake"), out.Content)
	assert.Contains(t, string(f.renderer.html), "QT-2025-0007")
	assert.Contains(t, string(f.renderer.html), "Asha Rao")
	assert.Contains(t, string(f.renderer.html), "BuildEx Constructions")
}

func TestQuotationPDF_Render_UnknownQuotation(t *testing.T) {
	f := newPDFFixture(t, true, false)

	_, err := f.svc.Render(context.Background(), utils.NewSixID())

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestQuotationPDF_Render_NoRenderer(t *testing.T) {
	f := newPDFFixture(t, false, true)

	_, err := f.svc.Render(context.Background(), f.q.ID)

	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestQuotationPDF_Render_RendererDown(t *testing.T) {
	f := newPDFFixture(t, true, false)
	f.renderer.err = fmt.Errorf("%w: connection refused", pdf.ErrRenderer)

	_, err := f.svc.Render(context.Background(), f.q.ID)

	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestQuotationPDF_Render_OtherFailure(t *testing.T) {
	f := newPDFFixture(t, true, false)
	f.renderer.err = errors.New("boom")

	_, err := f.svc.Render(context.Background(), f.q.ID)

	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrUnavailable))
}

func TestQuotationPDF_ArchiveOverwritesByNumber(t *testing.T) {
	f := newPDFFixture(t, true, true)
	ctx := context.Background()

	key, err := f.svc.Archive(ctx, f.q.ID)
	require.NoError(t, err)
	assert.Equal(t, "quotations/"+f.q.ID.String()+"/QT-2025-0007.pdf", key)

	again, err := f.svc.Archive(ctx, f.q.ID)
	require.NoError(t, err)
	assert.Equal(t, key, again)
	assert.Len(t, f.store.objects, 1)
}

func TestQuotationPDF_DownloadURL(t *testing.T) {
	f := newPDFFixture(t, true, true)

	url, err := f.svc.DownloadURL(context.Background(), f.q.ID)

	require.NoError(t, err)
	assert.Equal(t, "https://bucket.example.com/quotations/"+f.q.ID.String()+"/QT-2025-0007.pdf?ttl=900", url)
}

func TestQuotationPDF_ArchiveWithoutStorage(t *testing.T) {
	f := newPDFFixture(t, true, false)

	_, err := f.svc.Archive(context.Background(), f.q.ID)

	assert.ErrorIs(t, err, errs.ErrUnavailable)
}
