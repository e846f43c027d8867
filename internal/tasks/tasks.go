// Package tasks runs the asynq worker: e-mail delivery, quotation PDF
// archiving and the periodic sweeps.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/email"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/jobs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/observability"
	"buildex/backoffice/internal/services"
	"buildex/backoffice/internal/utils"
)

const reconcileAllSpec = "@every 24h"

// RedisOpt is the asynq connection for the configured redis.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

func NewClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// The processor only needs narrow slices of the services.
type (
	EmailRenderer interface {
		Render(ctx context.Context, templateID, locale string, data map[string]interface{}) (string, string, error)
	}
	PDFArchiver interface {
		Archive(ctx context.Context, id utils.SixID) (string, error)
	}
	QuotationExpirer interface {
		ExpireStale(ctx context.Context, now time.Time) (int64, error)
	}
	OverdueRefresher interface {
		RefreshOverdue(ctx context.Context, now time.Time) ([]models.Invoice, error)
	}
	ClientReconciler interface {
		FindByID(ctx context.Context, id utils.SixID) (*models.Client, error)
		Reconcile(ctx context.Context, id utils.SixID) (*models.Client, error)
		ListIDs(ctx context.Context) ([]utils.SixID, error)
	}
	NotificationCreator interface {
		Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	}
	DashboardInvalidator interface {
		Invalidate(ctx context.Context)
	}
	SettingsReader interface {
		Get() models.Settings
	}
)

// Deps are the collaborators of the TaskProcessor. Nil Dashboard and Queue are allowed.
type Deps struct {
	EmailSender    email.Sender
	EmailTemplates EmailRenderer
	PDFs           PDFArchiver
	Quotations     QuotationExpirer
	Invoices       OverdueRefresher
	Clients        ClientReconciler
	Notifications  NotificationCreator
	Dashboard      DashboardInvalidator
	Settings       SettingsReader
	Queue          jobs.Enqueuer
	Metrics        *observability.Metrics
}

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	cfg    *config.Config
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewTaskProcessor(cfg *config.Config, deps Deps, logger *zap.Logger) *TaskProcessor {
	return &TaskProcessor{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Mux registers every handler, each timed by the job metrics.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeEmailDelivery, p.tracked(jobs.TypeEmailDelivery, p.HandleEmailDeliveryTask))
	mux.HandleFunc(jobs.TypeQuotationPDFArchive, p.tracked(jobs.TypeQuotationPDFArchive, p.HandlePDFArchiveTask))
	mux.HandleFunc(jobs.TypeQuotationExpirySweep, p.tracked(jobs.TypeQuotationExpirySweep, p.HandleExpirySweepTask))
	mux.HandleFunc(jobs.TypeInvoiceCheckOverdue, p.tracked(jobs.TypeInvoiceCheckOverdue, p.HandleInvoiceCheckOverdueTask))
	mux.HandleFunc(jobs.TypeClientReconcile, p.tracked(jobs.TypeClientReconcile, p.HandleClientReconcileTask))
	return mux
}

func (p *TaskProcessor) tracked(job string, h func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		done := p.deps.Metrics.TrackJob(job)
		return done(h(ctx, t))
	}
}

// SetupServer configures the worker. The caller starts it with
// srv.Start(processor.Mux()) and stops it with Shutdown.
func SetupServer(cfg *config.Config, logger *zap.Logger) *asynq.Server {
	return asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Queues: map[string]int{
			jobs.QueueCritical: 6,
			jobs.QueueDefault:  3,
			jobs.QueueLow:      1,
		},
		Logger:   logger.Sugar(),
		LogLevel: asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("Task failed",
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Int("retry", retried),
				zap.Int("max_retry", maxRetry),
				zap.Error(err))
		}),
	})
}

// NewScheduler enqueues the periodic sweeps.
func NewScheduler(cfg *config.Config, logger *zap.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{
		Logger:   logger.Sugar(),
		Location: time.UTC,
	})
	entries := []struct {
		spec string
		typ  string
	}{
		{fmt.Sprintf("@every %s", cfg.ExpirySweepInterval), jobs.TypeQuotationExpirySweep},
		{fmt.Sprintf("@every %s", cfg.OverdueSweepInterval), jobs.TypeInvoiceCheckOverdue},
	}
	for _, e := range entries {
		if _, err := scheduler.Register(e.spec, jobs.NewSweepTask(e.typ)); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", e.typ, err)
		}
	}
	reconcile, err := jobs.NewReconcileTask(jobs.ReconcilePayload{})
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.Register(reconcileAllSpec, reconcile); err != nil {
		return nil, fmt.Errorf("failed to schedule %s: %w", jobs.TypeClientReconcile, err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task without recipient: %w", asynq.SkipRetry)
	}
	locale := payload.Locale
	if locale == "" {
		locale = services.DefaultEmailLocale
	}

	subject, body, err := p.deps.EmailTemplates.Render(ctx, payload.TemplateID, locale, payload.Data)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrValidation) {
			return fmt.Errorf("email template %s unusable: %v: %w", payload.TemplateID, err, asynq.SkipRetry)
		}
		return err
	}

	raw := email.BuildMessage(p.cfg.SmtpFromAddress, payload.To, subject, body, p.now())
	if err := p.deps.EmailSender.Send(ctx, []string{payload.To}, subject, raw); err != nil {
		return err
	}
	p.logger.Info("Email delivered", zap.String("to", payload.To), zap.String("template", payload.TemplateID))
	return nil
}

func (p *TaskProcessor) HandlePDFArchiveTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.PDFArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal pdf archive payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := utils.ParseSixID(payload.QuotationID)
	if err != nil {
		return fmt.Errorf("invalid quotation id %q: %w", payload.QuotationID, asynq.SkipRetry)
	}

	key, err := p.deps.PDFs.Archive(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("quotation %s is gone: %w", id, asynq.SkipRetry)
		}
		return err
	}
	p.logger.Info("Quotation pdf archived", zap.String("quotation_id", id.String()), zap.String("key", key))
	return nil
}

func (p *TaskProcessor) HandleExpirySweepTask(ctx context.Context, t *asynq.Task) error {
	n, err := p.deps.Quotations.ExpireStale(ctx, p.now())
	if err != nil {
		return err
	}
	if n > 0 {
		p.invalidateDashboard(ctx)
	}
	p.logger.Info("Quotation expiry sweep finished", zap.Int64("expired", n))
	return nil
}

// HandleInvoiceCheckOverdueTask flips late invoices to Overdue, then raises a
// notification and reminds the client for each one that changed.
func (p *TaskProcessor) HandleInvoiceCheckOverdueTask(ctx context.Context, t *asynq.Task) error {
	now := p.now()
	changed, err := p.deps.Invoices.RefreshOverdue(ctx, now)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		p.logger.Debug("No invoices became overdue")
		return nil
	}

	companyName := p.deps.Settings.Get().Company.Name
	for i := range changed {
		inv := &changed[i]
		clientName := ""
		client, err := p.deps.Clients.FindByID(ctx, inv.ClientID)
		if err == nil {
			clientName = client.Name
		}

		_, nerr := p.deps.Notifications.Create(ctx, &models.Notification{
			Type:    models.NotificationWarning,
			Title:   "Invoice overdue",
			Message: fmt.Sprintf("%s is overdue with %.2f outstanding", inv.InvoiceNumber, inv.BalanceAmount),
			Entity:  &models.EntityRef{Kind: "invoice", ID: inv.ID},
		})
		if nerr != nil {
			p.logger.Warn("Failed to create overdue notification", zap.String("invoice_id", inv.ID.String()), zap.Error(nerr))
		}

		if client == nil || client.Email == "" {
			continue
		}
		task, err := jobs.NewEmailTask(jobs.EmailTaskPayload{
			To:         client.Email,
			TemplateID: jobs.EmailInvoiceOverdue,
			Data: map[string]interface{}{
				"client_name":    clientName,
				"invoice_number": inv.InvoiceNumber,
				"due_date":       inv.DueDate.Format("2 Jan 2006"),
				"balance":        fmt.Sprintf("%.2f", inv.BalanceAmount),
				"company_name":   companyName,
			},
		})
		if err := jobs.Enqueue(ctx, p.deps.Queue, task, err); err != nil {
			p.logger.Warn("Failed to enqueue overdue reminder", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
		}
	}

	p.invalidateDashboard(ctx)
	p.logger.Info("Overdue check finished", zap.Int("overdue", len(changed)))
	return nil
}

// HandleClientReconcileTask recomputes client counters. Without a client id
// it walks every client and reports the failures together.
func (p *TaskProcessor) HandleClientReconcileTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ReconcilePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal reconcile payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	var ids []utils.SixID
	if payload.ClientID != "" {
		id, err := utils.ParseSixID(payload.ClientID)
		if err != nil {
			return fmt.Errorf("invalid client id %q: %w", payload.ClientID, asynq.SkipRetry)
		}
		ids = []utils.SixID{id}
	} else {
		var err error
		if ids, err = p.deps.Clients.ListIDs(ctx); err != nil {
			return err
		}
	}

	var failures []error
	for _, id := range ids {
		if _, err := p.deps.Clients.Reconcile(ctx, id); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			failures = append(failures, fmt.Errorf("client %s: %w", id, err))
		}
	}
	p.invalidateDashboard(ctx)
	p.logger.Info("Client reconcile finished", zap.Int("clients", len(ids)), zap.Int("failed", len(failures)))
	return errors.Join(failures...)
}

func (p *TaskProcessor) invalidateDashboard(ctx context.Context) {
	if p.deps.Dashboard != nil {
		p.deps.Dashboard.Invalidate(ctx)
	}
}
