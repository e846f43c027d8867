// Package jobs names the background tasks and their payloads. Producers
// (services, handlers) and the worker in package tasks both import it.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeEmailDelivery        = "email:deliver"
	TypeQuotationPDFArchive  = "quotation:pdf:archive"
	TypeQuotationExpirySweep = "quotation:expiry:sweep"
	TypeInvoiceCheckOverdue  = "billing:invoice:check_overdue"
	TypeClientReconcile      = "clients:reconcile"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Email template ids.
const (
	EmailQuotationShared    = "quotation_shared"
	EmailQuotationResponded = "quotation_responded"
	EmailInvoiceOverdue     = "invoice_overdue"
)

// Enqueuer is the part of *asynq.Client used by producers.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailTaskPayload asks the worker to render a template and send it.
type EmailTaskPayload struct {
	To         string                 `json:"to"`
	TemplateID string                 `json:"template_id"`
	Locale     string                 `json:"locale,omitempty"`
	Data       map[string]interface{} `json:"data"`
}

// PDFArchivePayload asks the worker to render a quotation and store it in S3.
type PDFArchivePayload struct {
	QuotationID string `json:"quotation_id"`
}

// ReconcilePayload recomputes one client's counters, or every client's when ClientID is empty.
type ReconcilePayload struct {
	ClientID string `json:"client_id,omitempty"`
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
	}
	return asynq.NewTask(typ, b, opts...), nil
}

func NewEmailTask(p EmailTaskPayload) (*asynq.Task, error) {
	return newTask(TypeEmailDelivery, p, asynq.Queue(QueueCritical), asynq.MaxRetry(5))
}

func NewPDFArchiveTask(p PDFArchivePayload) (*asynq.Task, error) {
	return newTask(TypeQuotationPDFArchive, p, asynq.Queue(QueueLow))
}

func NewReconcileTask(p ReconcilePayload) (*asynq.Task, error) {
	return newTask(TypeClientReconcile, p, asynq.Queue(QueueLow))
}

// NewSweepTask builds a payload-less periodic task.
func NewSweepTask(typ string) *asynq.Task {
	return asynq.NewTask(typ, nil, asynq.Queue(QueueDefault))
}

// Enqueue builds nothing itself; it tolerates a nil Enqueuer so that callers
// running without redis (tests, tooling) can skip background work.
func Enqueue(ctx context.Context, q Enqueuer, task *asynq.Task, err error) error {
	if err != nil {
		return err
	}
	if q == nil {
		return nil
	}
	if _, err := q.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", task.Type(), err)
	}
	return nil
}
