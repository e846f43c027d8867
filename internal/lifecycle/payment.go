package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"buildex/backoffice/internal/models"
)

// ComputePaymentStatus derives an invoice status. Overdue wins over Pending
// and Partial whenever the due date has passed. An invoice with nothing left
// to pay, including a zero total, is Paid.
func ComputePaymentStatus(paid, grandTotal float64, dueDate, now time.Time) models.PaymentStatus {
	var status models.PaymentStatus
	switch {
	case decimal.NewFromFloat(paid).GreaterThanOrEqual(decimal.NewFromFloat(grandTotal)):
		return models.PaymentPaid
	case paid <= 0:
		status = models.PaymentPending
	default:
		status = models.PaymentPartial
	}
	if !dueDate.IsZero() && dueDate.Before(now) {
		return models.PaymentOverdue
	}
	return status
}

// Balance is grandTotal - paid, never below zero.
func Balance(paid, grandTotal float64) float64 {
	b := decimal.NewFromFloat(grandTotal).Sub(decimal.NewFromFloat(paid))
	if b.IsNegative() {
		return 0
	}
	return round2(b)
}

// ApplyPaymentState recomputes balance, status and paid_at on inv. Cancelled
// invoices keep their status.
func ApplyPaymentState(inv *models.Invoice, now time.Time) {
	inv.PaidAmount = round2(decimal.NewFromFloat(inv.PaidAmount))
	inv.BalanceAmount = Balance(inv.PaidAmount, inv.Summary.GrandTotal)
	if inv.PaymentStatus == models.PaymentCancelled {
		return
	}
	inv.PaymentStatus = ComputePaymentStatus(inv.PaidAmount, inv.Summary.GrandTotal, inv.DueDate, now)
	if inv.PaymentStatus == models.PaymentPaid {
		if inv.PaidAt == nil {
			t := now.UTC()
			inv.PaidAt = &t
		}
	} else {
		inv.PaidAt = nil
	}
}
