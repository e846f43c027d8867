package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/lifecycle"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

// IInvoiceService manages invoices. Payment state is always derived from the
// paid amount, never written directly, except for cancellation.
type IInvoiceService interface {
	Create(ctx context.Context, in *models.InvoiceInput) (*models.Invoice, error)
	CreateFromQuotation(ctx context.Context, quotationID utils.SixID) (*models.Invoice, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error)
	List(ctx context.Context, f models.InvoiceFilter) ([]models.Invoice, int64, error)
	Update(ctx context.Context, id utils.SixID, in *models.InvoiceInput) (*models.Invoice, error)
	Delete(ctx context.Context, id utils.SixID) error
	UpdateStatus(ctx context.Context, id utils.SixID, status models.PaymentStatus) (*models.Invoice, error)
	ApplyPayment(ctx context.Context, id utils.SixID, delta float64) (*models.Invoice, error)
	RefreshOverdue(ctx context.Context, now time.Time) ([]models.Invoice, error)
}

type invoiceService struct {
	db         *mongo.Database
	cfg        *config.Config
	logger     *zap.Logger
	clients    IClientService
	counters   ICounterService
	settings   ISettingsService
	quotations IQuotationService
	now        func() time.Time
}

func NewInvoiceService(db *mongo.Database, cfg *config.Config, logger *zap.Logger, clients IClientService, counters ICounterService, settings ISettingsService, quotations IQuotationService) IInvoiceService {
	return &invoiceService{
		db:         db,
		cfg:        cfg,
		logger:     logger,
		clients:    clients,
		counters:   counters,
		settings:   settings,
		quotations: quotations,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *invoiceService) collection() *mongo.Collection {
	return s.db.Collection(db.CollInvoices)
}

func (s *invoiceService) Create(ctx context.Context, in *models.InvoiceInput) (*models.Invoice, error) {
	if in.FromQuotationID != nil {
		return s.CreateFromQuotation(ctx, *in.FromQuotationID)
	}
	if in.ClientID.IsZero() {
		return nil, errs.Validation("clientId is required")
	}
	if _, err := s.clients.FindByID(ctx, in.ClientID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, errs.Validation("client %s does not exist", in.ClientID)
		}
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, errs.Validation("an invoice needs at least one item")
	}

	settings := s.settings.Get()
	gstRate := settings.DefaultGSTRate
	if in.GSTRate != nil {
		gstRate = *in.GSTRate
	}
	priced, summary, err := lifecycle.Price(in.Items, gstRate, in.Discount, in.LabourCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inv := &models.Invoice{
		ClientID: in.ClientID,
		Items:    priced,
		Summary:  summary,
		Notes:    in.Notes,
		Terms:    in.Terms,
	}
	s.applyDates(inv, in.IssueDate, in.DueDate, settings, now)
	if inv.Terms == "" {
		inv.Terms = settings.Terms
	}
	lifecycle.ApplyPaymentState(inv, now)
	inv.Touch(now)

	err = db.Try(func() error {
		seq, err := s.counters.Next(ctx, models.CounterInvoice)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = lifecycle.InvoiceNumber(settings.Numbering, seq, now)
		_, err = db.InsertOne(ctx, s.collection(), inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bumpInvoiceCounter(ctx, inv.ClientID, 1)
	s.logger.Info("Invoice created", zap.String("invoice_id", inv.ID.String()), zap.String("number", inv.InvoiceNumber))
	return inv, nil
}

func (s *invoiceService) applyDates(inv *models.Invoice, issue, due *time.Time, settings models.Settings, now time.Time) {
	inv.IssueDate = now
	if issue != nil {
		inv.IssueDate = issue.UTC()
	}
	inv.DueDate = inv.IssueDate.AddDate(0, 0, settings.PaymentTermsDays)
	if due != nil {
		inv.DueDate = due.UTC()
	}
}

func (s *invoiceService) bumpInvoiceCounter(ctx context.Context, clientID utils.SixID, n int) {
	if err := s.clients.AdjustCounters(ctx, clientID, models.ClientCounters{Invoices: n}); err != nil {
		s.logger.Warn("Failed to adjust client invoice counter", zap.String("client_id", clientID.String()), zap.Int("delta", n), zap.Error(err))
	}
}

// CreateFromQuotation converts an accepted quotation. The invoice insert and
// the quotation's invoice_id are written in one transaction; a second
// conversion of the same quotation fails with ErrConflict.
func (s *invoiceService) CreateFromQuotation(ctx context.Context, quotationID utils.SixID) (*models.Invoice, error) {
	q, err := s.quotations.FindByID(ctx, quotationID)
	if err != nil {
		return nil, err
	}
	if q.Status != models.QuotationAccepted {
		return nil, fmt.Errorf("quotation %s is %s, only accepted quotations can be invoiced: %w", q.QuotationNumber, q.Status, errs.ErrConflict)
	}
	if q.InvoiceID != nil {
		return nil, fmt.Errorf("quotation %s is already invoiced: %w", q.QuotationNumber, errs.ErrConflict)
	}

	settings := s.settings.Get()
	now := s.now()
	project := q.Project
	inv := &models.Invoice{
		QuotationID: &q.ID,
		ClientID:    q.ClientID,
		Project:     &project,
		Items:       q.Items,
		Summary:     q.Summary,
		Notes:       q.Notes,
		Terms:       q.Terms,
	}
	s.applyDates(inv, nil, nil, settings, now)
	lifecycle.ApplyPaymentState(inv, now)
	inv.Touch(now)

	// A collision on invoice_number means the counter was reset; draw again.
	err = db.WithRetries(func() error {
		seq, err := s.counters.Next(ctx, models.CounterInvoice)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = lifecycle.InvoiceNumber(settings.Numbering, seq, now)
		inv.GenID()
		return s.insertConverted(ctx, q, inv)
	}, db.DefaultMaxRetries, isInvoiceNumberCollision)
	if err != nil {
		return nil, err
	}

	s.bumpInvoiceCounter(ctx, inv.ClientID, 1)
	s.logger.Info("Quotation converted to invoice",
		zap.String("quotation_id", q.ID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.InvoiceNumber))
	return inv, nil
}

func isInvoiceNumberCollision(err error) bool {
	return db.IsDuplicateKeyOn(err, invoiceNumberIndex)
}

const (
	invoiceNumberIndex = "invoice_number_1"
	quotationLinkIndex = "quotation_id_1"
)

// insertConverted stores inv and links it back to q in one transaction.
func (s *invoiceService) insertConverted(ctx context.Context, q *models.Quotation, inv *models.Invoice) error {
	return db.WithTransaction(ctx, s.db, s.cfg.MongoTransactions, func(tx context.Context) error {
		if _, err := s.collection().InsertOne(tx, inv); err != nil {
			if db.IsDuplicateKeyOn(err, quotationLinkIndex) {
				return fmt.Errorf("quotation %s is already invoiced: %w", q.QuotationNumber, errs.ErrConflict)
			}
			return fmt.Errorf("failed to insert invoice: %w", err)
		}
		if err := s.quotations.LinkInvoice(tx, q.ID, inv.ID); err != nil {
			if !s.cfg.MongoTransactions {
				if _, derr := s.collection().DeleteOne(ctx, bson.M{"_id": inv.ID}); derr != nil {
					s.logger.Error("Failed to remove invoice after link failure", zap.String("invoice_id", inv.ID.String()), zap.Error(derr))
				}
			}
			return err
		}
		return nil
	})
}

func (s *invoiceService) FindByID(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("invoice")
		}
		return nil, fmt.Errorf("failed to find invoice %s: %w", id, err)
	}
	return &inv, nil
}

func (s *invoiceService) List(ctx context.Context, f models.InvoiceFilter) ([]models.Invoice, int64, error) {
	filter := bson.M{}
	if f.PaymentStatus != "" {
		filter["payment_status"] = f.PaymentStatus
	}
	if f.ClientID != nil {
		filter["client_id"] = *f.ClientID
	}
	if issued := dateRange(f.From, f.To); issued != nil {
		filter["issue_date"] = issued
	}
	var out []models.Invoice
	total, err := findPage(ctx, s.collection(), filter, bson.D{{Key: "created_at", Value: -1}}, f.PageRequest, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	return out, total, nil
}

// Update reprices the invoice and recomputes its payment state. The client
// cannot be changed once payments may reference it.
func (s *invoiceService) Update(ctx context.Context, id utils.SixID, in *models.InvoiceInput) (*models.Invoice, error) {
	inv, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == models.PaymentCancelled {
		return nil, fmt.Errorf("invoice %s is cancelled: %w", inv.InvoiceNumber, errs.ErrConflict)
	}

	items := in.Items
	if len(items) == 0 {
		items = inv.Items
	}
	gstRate := inv.Summary.GSTRate
	if in.GSTRate != nil {
		gstRate = *in.GSTRate
	}
	priced, summary, err := lifecycle.Price(items, gstRate, in.Discount, in.LabourCost)
	if err != nil {
		return nil, err
	}

	now := s.now()
	observedPaid := inv.PaidAmount
	inv.Items = priced
	inv.Summary = summary
	inv.Notes = in.Notes
	inv.Terms = in.Terms
	if in.IssueDate != nil {
		inv.IssueDate = in.IssueDate.UTC()
	}
	if in.DueDate != nil {
		inv.DueDate = in.DueDate.UTC()
	}
	lifecycle.ApplyPaymentState(inv, now)
	inv.UpdatedAt = now

	set := bson.M{
		"items":          inv.Items,
		"summary":        inv.Summary,
		"notes":          inv.Notes,
		"terms":          inv.Terms,
		"issue_date":     inv.IssueDate,
		"due_date":       inv.DueDate,
		"balance_amount": inv.BalanceAmount,
		"payment_status": inv.PaymentStatus,
		"updated_at":     now,
	}
	if err := s.writePaymentState(ctx, inv, observedPaid, set); err != nil {
		return nil, err
	}
	return inv, nil
}

// writePaymentState stores set plus paid_at, conditional on the paid amount
// read before the change.
func (s *invoiceService) writePaymentState(ctx context.Context, inv *models.Invoice, observedPaid float64, set bson.M) error {
	update := bson.M{"$set": set}
	if inv.PaidAt != nil {
		set["paid_at"] = *inv.PaidAt
	} else {
		update["$unset"] = bson.M{"paid_at": ""}
	}
	res, err := s.collection().UpdateOne(ctx, bson.M{"_id": inv.ID, "paid_amount": observedPaid}, update)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.ID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("invoice %s changed concurrently: %w", inv.InvoiceNumber, errs.ErrConflict)
	}
	return nil
}

// Delete removes an invoice without payments and frees its quotation for re-conversion.
func (s *invoiceService) Delete(ctx context.Context, id utils.SixID) error {
	n, err := s.db.Collection(db.CollPayments).CountDocuments(ctx, bson.M{"invoice_id": id})
	if err != nil {
		return fmt.Errorf("failed to count payments: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("invoice has %d payment(s), delete them first: %w", n, errs.ErrConflict)
	}

	var inv models.Invoice
	if err := s.collection().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&inv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return errs.NotFound("invoice")
		}
		return fmt.Errorf("failed to delete invoice %s: %w", id, err)
	}
	if inv.QuotationID != nil {
		if err := s.quotations.UnlinkInvoice(ctx, *inv.QuotationID); err != nil {
			s.logger.Warn("Failed to unlink quotation from deleted invoice", zap.String("quotation_id", inv.QuotationID.String()), zap.Error(err))
		}
	}
	s.bumpInvoiceCounter(ctx, inv.ClientID, -1)
	s.logger.Info("Invoice deleted", zap.String("invoice_id", id.String()), zap.String("number", inv.InvoiceNumber))
	return nil
}

// UpdateStatus cancels an invoice, or re-derives the status of any other
// invoice. Asking for a derived status that does not match the payments is a
// validation error.
func (s *invoiceService) UpdateStatus(ctx context.Context, id utils.SixID, status models.PaymentStatus) (*models.Invoice, error) {
	if !status.Valid() {
		return nil, errs.Validation("unknown payment status %q", status)
	}
	inv, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	observedPaid := inv.PaidAmount

	if status == models.PaymentCancelled {
		if inv.PaidAmount > 0 {
			return nil, fmt.Errorf("invoice %s has payments, delete them before cancelling: %w", inv.InvoiceNumber, errs.ErrConflict)
		}
		inv.PaymentStatus = models.PaymentCancelled
	} else {
		inv.PaymentStatus = ""
		lifecycle.ApplyPaymentState(inv, now)
		if inv.PaymentStatus != status {
			return nil, errs.Validation("payment status is derived from payments and due date; it is currently %s", inv.PaymentStatus)
		}
	}
	inv.UpdatedAt = now

	set := bson.M{
		"payment_status": inv.PaymentStatus,
		"balance_amount": inv.BalanceAmount,
		"updated_at":     now,
	}
	if err := s.writePaymentState(ctx, inv, observedPaid, set); err != nil {
		return nil, err
	}
	return inv, nil
}

// ApplyPayment adds delta (negative for a removed payment) to the paid amount
// and recomputes the derived state. ctx may carry a transaction.
func (s *invoiceService) ApplyPayment(ctx context.Context, id utils.SixID, delta float64) (*models.Invoice, error) {
	inv, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.PaymentStatus == models.PaymentCancelled && delta > 0 {
		return nil, fmt.Errorf("invoice %s is cancelled: %w", inv.InvoiceNumber, errs.ErrConflict)
	}
	paid := decimal.NewFromFloat(inv.PaidAmount).Add(decimal.NewFromFloat(delta))
	if paid.IsNegative() {
		return nil, errs.Validation("paid amount of invoice %s would become negative", inv.InvoiceNumber)
	}

	now := s.now()
	observedPaid := inv.PaidAmount
	inv.PaidAmount = paid.InexactFloat64()
	lifecycle.ApplyPaymentState(inv, now)
	inv.UpdatedAt = now

	set := bson.M{
		"paid_amount":    inv.PaidAmount,
		"balance_amount": inv.BalanceAmount,
		"payment_status": inv.PaymentStatus,
		"updated_at":     now,
	}
	if err := s.writePaymentState(ctx, inv, observedPaid, set); err != nil {
		return nil, err
	}
	return inv, nil
}

// RefreshOverdue flags unpaid invoices past their due date and returns the
// ones that changed.
func (s *invoiceService) RefreshOverdue(ctx context.Context, now time.Time) ([]models.Invoice, error) {
	filter := bson.M{
		"payment_status": bson.M{"$in": bson.A{models.PaymentPending, models.PaymentPartial}},
		"due_date":       bson.M{"$lt": now},
		"balance_amount": bson.M{"$gt": 0},
	}
	cur, err := s.collection().Find(ctx, filter, options.Find().SetLimit(500))
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue invoices: %w", err)
	}
	var due []models.Invoice
	if err := cur.All(ctx, &due); err != nil {
		return nil, fmt.Errorf("failed to decode overdue invoices: %w", err)
	}

	var changed []models.Invoice
	for _, inv := range due {
		res, err := s.collection().UpdateOne(ctx,
			bson.M{"_id": inv.ID, "payment_status": inv.PaymentStatus},
			bson.M{"$set": bson.M{"payment_status": models.PaymentOverdue, "updated_at": now}})
		if err != nil {
			return changed, fmt.Errorf("failed to mark invoice %s overdue: %w", inv.InvoiceNumber, err)
		}
		if res.ModifiedCount == 1 {
			inv.PaymentStatus = models.PaymentOverdue
			changed = append(changed, inv)
		}
	}
	if len(changed) > 0 {
		s.logger.Info("Invoices marked overdue", zap.Int("count", len(changed)))
	}
	return changed, nil
}
