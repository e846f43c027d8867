package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/pdf"
	"buildex/backoffice/internal/storage"
	"buildex/backoffice/internal/utils"
)

// RenderedPDF is a rendered quotation ready to stream.
type RenderedPDF struct {
	Filename string
	Content  []byte
}

// IQuotationPDFService renders quotations and keeps a copy in object storage.
type IQuotationPDFService interface {
	Render(ctx context.Context, id utils.SixID) (*RenderedPDF, error)
	Archive(ctx context.Context, id utils.SixID) (string, error)
	DownloadURL(ctx context.Context, id utils.SixID) (string, error)
}

type quotationPDFService struct {
	quotations IQuotationService
	clients    IClientService
	settings   ISettingsService
	renderer   pdf.Renderer
	storage    storage.IS3Storage
	logger     *zap.Logger
}

// NewQuotationPDFService accepts a nil storage; Archive and DownloadURL then
// report the service as unavailable.
func NewQuotationPDFService(quotations IQuotationService, clients IClientService, settings ISettingsService, renderer pdf.Renderer, store storage.IS3Storage, logger *zap.Logger) IQuotationPDFService {
	return &quotationPDFService{
		quotations: quotations,
		clients:    clients,
		settings:   settings,
		renderer:   renderer,
		storage:    store,
		logger:     logger,
	}
}

func (s *quotationPDFService) Render(ctx context.Context, id utils.SixID) (*RenderedPDF, error) {
	if s.renderer == nil {
		return nil, fmt.Errorf("pdf rendering is not configured: %w", errs.ErrUnavailable)
	}
	q, err := s.quotations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.render(ctx, q)
}

func (s *quotationPDFService) render(ctx context.Context, q *models.Quotation) (*RenderedPDF, error) {
	doc := pdf.QuotationDocument{Quotation: q, Company: s.settings.Get().Company}

	client, err := s.clients.FindByID(ctx, q.ClientID)
	switch {
	case err == nil:
		doc.Client = client
	case errors.Is(err, errs.ErrNotFound):
		s.logger.Warn("Rendering quotation without client", zap.String("quotation_id", q.ID.String()))
	default:
		return nil, err
	}
	if doc.LogoURL, err = s.settings.LogoURL(ctx); err != nil {
		s.logger.Warn("Failed to presign logo for pdf", zap.Error(err))
	}

	html, err := pdf.RenderQuotationHTML(doc)
	if err != nil {
		return nil, err
	}
	content, err := s.renderer.RenderHTML(ctx, html)
	if err != nil {
		if errors.Is(err, pdf.ErrRenderer) {
			return nil, fmt.Errorf("%v: %w", err, errs.ErrUnavailable)
		}
		return nil, err
	}
	return &RenderedPDF{Filename: q.QuotationNumber + ".pdf", Content: content}, nil
}

// Archive renders the quotation and stores it under its number, replacing any
// earlier copy. It returns the object key.
func (s *quotationPDFService) Archive(ctx context.Context, id utils.SixID) (string, error) {
	if s.storage == nil {
		return "", fmt.Errorf("object storage is not configured: %w", errs.ErrUnavailable)
	}
	if s.renderer == nil {
		return "", fmt.Errorf("pdf rendering is not configured: %w", errs.ErrUnavailable)
	}
	q, err := s.quotations.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	out, err := s.render(ctx, q)
	if err != nil {
		return "", err
	}
	key := storage.QuotationPDFKey(q.ID.String(), q.QuotationNumber)
	if err := s.storage.PutObject(ctx, key, "application/pdf", out.Content); err != nil {
		return "", err
	}
	s.logger.Info("Quotation pdf archived", zap.String("quotation_id", id.String()), zap.String("key", key))
	return key, nil
}

func (s *quotationPDFService) DownloadURL(ctx context.Context, id utils.SixID) (string, error) {
	key, err := s.Archive(ctx, id)
	if err != nil {
		return "", err
	}
	return s.storage.PresignGetURL(ctx, key, storage.PresignTTL)
}
