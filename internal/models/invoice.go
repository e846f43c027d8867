package models

import (
	"time"

	"buildex/backoffice/internal/utils"
)

// PaymentStatus is derived from paid amount, grand total and due date.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentPartial   PaymentStatus = "Partial"
	PaymentPaid      PaymentStatus = "Paid"
	PaymentOverdue   PaymentStatus = "Overdue"
	PaymentCancelled PaymentStatus = "Cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentOverdue, PaymentCancelled:
		return true
	}
	return false
}

// Invoice represents a bill issued to a client, optionally derived from an accepted quotation.
type Invoice struct {
	Base          `bson:",inline"`
	InvoiceNumber string          `bson:"invoice_number" json:"invoiceNumber"`
	QuotationID   *utils.SixID    `bson:"quotation_id,omitempty" json:"quotationId,omitempty"`
	ClientID      utils.SixID     `bson:"client_id" json:"clientId"`
	Project       *ProjectDetails `bson:"project,omitempty" json:"project,omitempty"`
	Items         []CostItem      `bson:"items" json:"items"`
	Summary       Summary         `bson:"summary" json:"summary"`
	IssueDate     time.Time       `bson:"issue_date" json:"issueDate"`
	DueDate       time.Time       `bson:"due_date" json:"dueDate"`
	PaidAmount    float64         `bson:"paid_amount" json:"paidAmount"`
	BalanceAmount float64         `bson:"balance_amount" json:"balanceAmount"`
	PaymentStatus PaymentStatus   `bson:"payment_status" json:"paymentStatus"`
	PaidAt        *time.Time      `bson:"paid_at,omitempty" json:"paidAt,omitempty"`
	Notes         string          `bson:"notes,omitempty" json:"notes,omitempty"`
	Terms         string          `bson:"terms,omitempty" json:"terms,omitempty"`
	Timestamps    `bson:",inline"`
}

// InvoiceInput is the writable part of an invoice accepted from the API.
type InvoiceInput struct {
	ClientID        utils.SixID  `json:"clientId"`
	FromQuotationID *utils.SixID `json:"fromQuotationId,omitempty"`
	Items           []CostItem   `json:"items" binding:"omitempty,dive"`
	GSTRate         *float64     `json:"gstRate,omitempty" binding:"omitempty,gte=0,lte=100"`
	Discount        float64      `json:"discount" binding:"money"`
	LabourCost      float64      `json:"labourCost" binding:"money"`
	IssueDate       *time.Time   `json:"issueDate,omitempty"`
	DueDate         *time.Time   `json:"dueDate,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	Terms           string       `json:"terms,omitempty"`
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	PaymentStatus PaymentStatus
	ClientID      *utils.SixID
	From          *time.Time
	To            *time.Time
	PageRequest
}
