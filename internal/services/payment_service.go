package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"buildex/backoffice/internal/config"
	"buildex/backoffice/internal/db"
	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

// IPaymentService records payments. Each write moves the payment ledger, the
// invoice's paid amount and the client's revenue together.
type IPaymentService interface {
	Create(ctx context.Context, in *models.PaymentInput) (*models.Payment, *models.Invoice, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Payment, error)
	List(ctx context.Context, f models.PaymentFilter) ([]models.Payment, int64, error)
	Delete(ctx context.Context, id utils.SixID) (*models.Invoice, error)
}

type paymentService struct {
	db       *mongo.Database
	cfg      *config.Config
	logger   *zap.Logger
	invoices IInvoiceService
	clients  IClientService
}

func NewPaymentService(db *mongo.Database, cfg *config.Config, logger *zap.Logger, invoices IInvoiceService, clients IClientService) IPaymentService {
	return &paymentService{
		db:       db,
		cfg:      cfg,
		logger:   logger,
		invoices: invoices,
		clients:  clients,
	}
}

func (s *paymentService) collection() *mongo.Collection {
	return s.db.Collection(db.CollPayments)
}

// Create validates the amount against the invoice balance and applies the
// payment inside a transaction.
func (s *paymentService) Create(ctx context.Context, in *models.PaymentInput) (*models.Payment, *models.Invoice, error) {
	if in.Amount <= 0 {
		return nil, nil, errs.Validation("payment amount must be positive")
	}
	if in.Method == "" {
		in.Method = models.MethodOther
	}
	if !in.Method.Valid() {
		return nil, nil, errs.Validation("unknown payment method %q", in.Method)
	}

	now := time.Now().UTC()
	p := &models.Payment{
		InvoiceID: in.InvoiceID,
		Amount:    decimal.NewFromFloat(in.Amount).Round(2).InexactFloat64(),
		Method:    in.Method,
		Reference: in.Reference,
		PaidOn:    now,
		Notes:     in.Notes,
		CreatedAt: now,
	}
	if in.PaidOn != nil {
		p.PaidOn = in.PaidOn.UTC()
	}
	p.GenID()

	var updated *models.Invoice
	err := db.WithTransaction(ctx, s.db, s.cfg.MongoTransactions, func(tx context.Context) error {
		inv, err := s.invoices.FindByID(tx, in.InvoiceID)
		if err != nil {
			return err
		}
		if inv.PaymentStatus == models.PaymentCancelled {
			return fmt.Errorf("invoice %s is cancelled: %w", inv.InvoiceNumber, errs.ErrConflict)
		}
		if decimal.NewFromFloat(p.Amount).GreaterThan(decimal.NewFromFloat(inv.BalanceAmount)) {
			return errs.Validation("amount %.2f exceeds the outstanding balance %.2f", p.Amount, inv.BalanceAmount)
		}
		p.ClientID = inv.ClientID

		if _, err := s.collection().InsertOne(tx, p); err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		if updated, err = s.invoices.ApplyPayment(tx, inv.ID, p.Amount); err != nil {
			return err
		}
		return s.clients.AdjustCounters(tx, inv.ClientID, models.ClientCounters{Revenue: p.Amount})
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("payment_id", p.ID.String()),
		zap.String("invoice_id", p.InvoiceID.String()),
		zap.Float64("amount", p.Amount),
		zap.String("payment_status", string(updated.PaymentStatus)))
	return p, updated, nil
}

func (s *paymentService) FindByID(ctx context.Context, id utils.SixID) (*models.Payment, error) {
	var p models.Payment
	if err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errs.NotFound("payment")
		}
		return nil, fmt.Errorf("failed to find payment %s: %w", id, err)
	}
	return &p, nil
}

func (s *paymentService) List(ctx context.Context, f models.PaymentFilter) ([]models.Payment, int64, error) {
	filter := bson.M{}
	if f.InvoiceID != nil {
		filter["invoice_id"] = *f.InvoiceID
	}
	if f.ClientID != nil {
		filter["client_id"] = *f.ClientID
	}
	var out []models.Payment
	total, err := findPage(ctx, s.collection(), filter, bson.D{{Key: "paid_on", Value: -1}}, f.PageRequest, &out)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return out, total, nil
}

// Delete removes a payment and reverses its effect on the invoice and client.
func (s *paymentService) Delete(ctx context.Context, id utils.SixID) (*models.Invoice, error) {
	var updated *models.Invoice
	err := db.WithTransaction(ctx, s.db, s.cfg.MongoTransactions, func(tx context.Context) error {
		var p models.Payment
		if err := s.collection().FindOneAndDelete(tx, bson.M{"_id": id}).Decode(&p); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return errs.NotFound("payment")
			}
			return fmt.Errorf("failed to delete payment %s: %w", id, err)
		}
		var err error
		if updated, err = s.invoices.ApplyPayment(tx, p.InvoiceID, -p.Amount); err != nil {
			return err
		}
		return s.clients.AdjustCounters(tx, p.ClientID, models.ClientCounters{Revenue: -p.Amount})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Payment deleted", zap.String("payment_id", id.String()), zap.String("invoice_id", updated.ID.String()))
	return updated, nil
}
