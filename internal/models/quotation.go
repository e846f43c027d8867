package models

import (
	"time"

	"buildex/backoffice/internal/utils"
)

// QuotationStatus is the admin-facing state of a quotation.
type QuotationStatus string

const (
	QuotationDraft    QuotationStatus = "draft"
	QuotationSent     QuotationStatus = "sent"
	QuotationAccepted QuotationStatus = "accepted"
	QuotationRejected QuotationStatus = "rejected"
	QuotationExpired  QuotationStatus = "expired"
)

// QuotationStatuses lists every valid QuotationStatus.
var QuotationStatuses = []QuotationStatus{
	QuotationDraft, QuotationSent, QuotationAccepted, QuotationRejected, QuotationExpired,
}

func (s QuotationStatus) Valid() bool {
	for _, v := range QuotationStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ClientStatus is the client-facing progress of a quotation.
type ClientStatus string

const (
	ClientPending          ClientStatus = "pending"
	ClientViewed           ClientStatus = "viewed"
	ClientApproved         ClientStatus = "approved"
	ClientRejected         ClientStatus = "rejected"
	ClientChangesRequested ClientStatus = "changes-requested"
)

var ClientStatuses = []ClientStatus{
	ClientPending, ClientViewed, ClientApproved, ClientRejected, ClientChangesRequested,
}

func (s ClientStatus) Valid() bool {
	for _, v := range ClientStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// FeedbackAction is what a client can do with a shared quotation.
type FeedbackAction string

const (
	ActionApprove        FeedbackAction = "approve"
	ActionReject         FeedbackAction = "reject"
	ActionRequestChanges FeedbackAction = "request-changes"
)

// ProjectDetails describes the construction job being quoted.
type ProjectDetails struct {
	Type        string  `bson:"type" json:"type"`
	Area        float64 `bson:"area" json:"area"`
	AreaUnit    string  `bson:"area_unit,omitempty" json:"areaUnit,omitempty"`
	Location    string  `bson:"location,omitempty" json:"location,omitempty"`
	QualityTier string  `bson:"quality_tier,omitempty" json:"qualityTier,omitempty"`
}

// CostItem is one priced line. Amount is always quantity × rate, computed server side.
type CostItem struct {
	Name     string  `bson:"name" json:"name" binding:"required"`
	Category string  `bson:"category,omitempty" json:"category,omitempty"`
	Quantity float64 `bson:"quantity" json:"quantity" binding:"gte=0"`
	Unit     string  `bson:"unit,omitempty" json:"unit,omitempty"`
	Rate     float64 `bson:"rate" json:"rate" binding:"gte=0,money"`
	Amount   float64 `bson:"amount" json:"amount"`
}

// Summary holds the money totals of a quotation or invoice.
type Summary struct {
	Subtotal   float64 `bson:"subtotal" json:"subtotal"`
	GSTRate    float64 `bson:"gst_rate" json:"gstRate"`
	GSTAmount  float64 `bson:"gst_amount" json:"gstAmount"`
	Discount   float64 `bson:"discount" json:"discount"`
	LabourCost float64 `bson:"labour_cost,omitempty" json:"labourCost,omitempty"`
	GrandTotal float64 `bson:"grand_total" json:"grandTotal"`
}

// ClientFeedback is the most recent response a client gave on a quotation.
type ClientFeedback struct {
	Action           FeedbackAction `bson:"action" json:"action"`
	Comments         string         `bson:"comments,omitempty" json:"comments,omitempty"`
	RejectionReason  string         `bson:"rejection_reason,omitempty" json:"rejectionReason,omitempty"`
	RequestedChanges []string       `bson:"requested_changes,omitempty" json:"requestedChanges,omitempty"`
	RespondedAt      time.Time      `bson:"responded_at" json:"respondedAt"`
	IP               string         `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent        string         `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	// Source is "client" for token responses and "admin" for feedback recorded by staff.
	Source string `bson:"source" json:"source"`
}

// ActivityEntry is one line of a quotation's audit trail.
type ActivityEntry struct {
	Action  string    `bson:"action" json:"action"`
	At      time.Time `bson:"at" json:"at"`
	Details string    `bson:"details,omitempty" json:"details,omitempty"`
	IP      string    `bson:"ip,omitempty" json:"ip,omitempty"`
}

// Quotation is a priced proposal for a client.
type Quotation struct {
	Base            `bson:",inline"`
	QuotationNumber string           `bson:"quotation_number" json:"quotationNumber"`
	ClientID        utils.SixID      `bson:"client_id" json:"clientId"`
	Project         ProjectDetails   `bson:"project" json:"project"`
	Items           []CostItem       `bson:"items" json:"items"`
	Summary         Summary          `bson:"summary" json:"summary"`
	Status          QuotationStatus  `bson:"status" json:"status"`
	ClientStatus    ClientStatus     `bson:"client_status" json:"clientStatus"`
	ClientFeedback  *ClientFeedback  `bson:"client_feedback,omitempty" json:"clientFeedback,omitempty"`
	FeedbackHistory []ClientFeedback `bson:"feedback_history,omitempty" json:"feedbackHistory,omitempty"`
	ActivityLog     []ActivityEntry  `bson:"activity_log" json:"activityLog"`
	AccessToken     string           `bson:"access_token,omitempty" json:"accessToken,omitempty"`
	TokenExpiresAt  *time.Time       `bson:"token_expires_at,omitempty" json:"tokenExpiresAt,omitempty"`
	ValidTill       *time.Time       `bson:"valid_till,omitempty" json:"validTill,omitempty"`
	SentAt          *time.Time       `bson:"sent_at,omitempty" json:"sentAt,omitempty"`
	ViewedAt        *time.Time       `bson:"viewed_at,omitempty" json:"viewedAt,omitempty"`
	AcceptedAt      *time.Time       `bson:"accepted_at,omitempty" json:"acceptedAt,omitempty"`
	RejectedAt      *time.Time       `bson:"rejected_at,omitempty" json:"rejectedAt,omitempty"`
	ExpiredAt       *time.Time       `bson:"expired_at,omitempty" json:"expiredAt,omitempty"`
	InvoiceID       *utils.SixID     `bson:"invoice_id,omitempty" json:"invoiceId,omitempty"`
	TemplateID      *utils.SixID     `bson:"template_id,omitempty" json:"templateId,omitempty"`
	Notes           string           `bson:"notes,omitempty" json:"notes,omitempty"`
	Terms           string           `bson:"terms,omitempty" json:"terms,omitempty"`
	Timestamps      `bson:",inline"`
}

// QuotationInput is the writable part of a quotation accepted from the API.
type QuotationInput struct {
	ClientID   utils.SixID    `json:"clientId" binding:"required,sixid"`
	TemplateID *utils.SixID   `json:"templateId,omitempty"`
	Project    ProjectDetails `json:"project"`
	Items      []CostItem     `json:"items" binding:"omitempty,dive"`
	GSTRate    *float64       `json:"gstRate,omitempty" binding:"omitempty,gte=0,lte=100"`
	Discount   float64        `json:"discount" binding:"money"`
	LabourCost float64        `json:"labourCost" binding:"money"`
	ValidTill  *time.Time     `json:"validTill,omitempty"`
	Notes      string         `json:"notes,omitempty"`
	Terms      string         `json:"terms,omitempty"`
}

// QuotationFilter narrows quotation listings.
type QuotationFilter struct {
	Status       QuotationStatus
	ClientStatus ClientStatus
	ClientID     *utils.SixID
	Search       string
	From         *time.Time
	To           *time.Time
	PageRequest
}

// ShareLink is returned when a quotation is shared with its client.
type ShareLink struct {
	AccessToken  string    `json:"accessToken"`
	ShareableURL string    `json:"shareableUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ClientResponse is what a client submits through the public link.
type ClientResponse struct {
	Action           FeedbackAction `json:"action" binding:"required"`
	Comments         string         `json:"comments"`
	Reasons          string         `json:"reasons"`
	RequestedChanges []string       `json:"requestedChanges"`
	IP               string         `json:"-"`
	UserAgent        string         `json:"-"`
}

// FeedbackView is the feedback section of a single quotation.
type FeedbackView struct {
	QuotationID     utils.SixID      `json:"quotationId"`
	QuotationNumber string           `json:"quotationNumber"`
	ClientStatus    ClientStatus     `json:"clientStatus"`
	ClientFeedback  *ClientFeedback  `json:"clientFeedback,omitempty"`
	FeedbackHistory []ClientFeedback `json:"feedbackHistory,omitempty"`
}

// FeedbackStats summarises client responses across all quotations.
type FeedbackStats struct {
	TotalWithFeedback int64                    `json:"totalWithFeedback"`
	ByClientStatus    map[ClientStatus]int64   `json:"byClientStatus"`
	ByAction          map[FeedbackAction]int64 `json:"byAction"`
	ApprovalRate      float64                  `json:"approvalRate"`
}

// PublicQuotation is the view served on the public share link. Internal
// fields such as the activity log and notes are left out.
type PublicQuotation struct {
	ID              utils.SixID     `json:"id"`
	QuotationNumber string          `json:"quotationNumber"`
	Client          *PublicClient   `json:"client,omitempty"`
	Project         ProjectDetails  `json:"project"`
	Items           []CostItem      `json:"items"`
	Summary         Summary         `json:"summary"`
	Status          QuotationStatus `json:"status"`
	ClientStatus    ClientStatus    `json:"clientStatus"`
	ClientFeedback  *ClientFeedback `json:"clientFeedback,omitempty"`
	ValidTill       *time.Time      `json:"validTill,omitempty"`
	Terms           string          `json:"terms,omitempty"`
	Company         *CompanyProfile `json:"company,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// PublicClient is the subset of client data shown to the client itself.
type PublicClient struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
}

// ToPublic strips internal fields.
func (q *Quotation) ToPublic() *PublicQuotation {
	p := &PublicQuotation{
		ID:              q.ID,
		QuotationNumber: q.QuotationNumber,
		Project:         q.Project,
		Items:           q.Items,
		Summary:         q.Summary,
		Status:          q.Status,
		ClientStatus:    q.ClientStatus,
		ValidTill:       q.ValidTill,
		Terms:           q.Terms,
		CreatedAt:       q.CreatedAt,
	}
	if q.ClientFeedback != nil {
		fb := *q.ClientFeedback
		fb.IP, fb.UserAgent = "", ""
		p.ClientFeedback = &fb
	}
	return p
}
