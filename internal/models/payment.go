package models

import (
	"time"

	"buildex/backoffice/internal/utils"
)

// PaymentMethod is how a client paid.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodUPI          PaymentMethod = "upi"
	MethodCheque       PaymentMethod = "cheque"
	MethodCard         PaymentMethod = "card"
	MethodOther        PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodUPI, MethodCheque, MethodCard, MethodOther:
		return true
	}
	return false
}

// Payment is an append-only ledger entry against an invoice.
type Payment struct {
	Base      `bson:",inline"`
	InvoiceID utils.SixID   `bson:"invoice_id" json:"invoiceId"`
	ClientID  utils.SixID   `bson:"client_id" json:"clientId"`
	Amount    float64       `bson:"amount" json:"amount"`
	Method    PaymentMethod `bson:"method" json:"method"`
	Reference string        `bson:"reference,omitempty" json:"reference,omitempty"`
	PaidOn    time.Time     `bson:"paid_on" json:"paidOn"`
	Notes     string        `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
}

// PaymentInput is accepted by POST /api/payments.
type PaymentInput struct {
	InvoiceID utils.SixID   `json:"invoiceId" binding:"required,sixid"`
	Amount    float64       `json:"amount" binding:"required,gt=0,money"`
	Method    PaymentMethod `json:"method"`
	Reference string        `json:"reference"`
	PaidOn    *time.Time    `json:"paidOn,omitempty"`
	Notes     string        `json:"notes"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	InvoiceID *utils.SixID
	ClientID  *utils.SixID
	PageRequest
}
