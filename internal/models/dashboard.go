package models

import "buildex/backoffice/internal/utils"

// DashboardStats is the aggregate report shown on the dashboard home page.
type DashboardStats struct {
	Quotations struct {
		Total          int64                     `json:"total"`
		ByStatus       map[QuotationStatus]int64 `json:"byStatus"`
		ByClientStatus map[ClientStatus]int64    `json:"byClientStatus"`
		PipelineValue  float64                   `json:"pipelineValue"`
	} `json:"quotations"`
	Invoices struct {
		Total            int64                   `json:"total"`
		ByPaymentStatus  map[PaymentStatus]int64 `json:"byPaymentStatus"`
		TotalBilled      float64                 `json:"totalBilled"`
		OutstandingTotal float64                 `json:"outstandingTotal"`
	} `json:"invoices"`
	Revenue struct {
		ThisMonth float64 `json:"thisMonth"`
		AllTime   float64 `json:"allTime"`
	} `json:"revenue"`
	Clients struct {
		Total int64           `json:"total"`
		Top   []ClientRevenue `json:"top"`
	} `json:"clients"`
	RecentQuotations []QuotationSummary `json:"recentQuotations"`
}

type ClientRevenue struct {
	ID           utils.SixID `bson:"_id" json:"id"`
	Name         string      `bson:"name" json:"name"`
	TotalRevenue float64     `bson:"total_revenue" json:"totalRevenue"`
}

// QuotationSummary is a compact row for recent-activity lists.
type QuotationSummary struct {
	ID              utils.SixID     `bson:"_id" json:"id"`
	QuotationNumber string          `bson:"quotation_number" json:"quotationNumber"`
	Status          QuotationStatus `bson:"status" json:"status"`
	ClientStatus    ClientStatus    `bson:"client_status" json:"clientStatus"`
	GrandTotal      float64         `bson:"grand_total" json:"grandTotal"`
}
