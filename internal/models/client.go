package models

// Client is a customer of the contractor. The total_* counters are
// denormalised aggregates maintained with $inc by the quotation, invoice and
// payment services.
type Client struct {
	Base            `bson:",inline"`
	Name            string  `bson:"name" json:"name" binding:"required"`
	Email           string  `bson:"email,omitempty" json:"email,omitempty" binding:"omitempty,email"`
	Phone           string  `bson:"phone,omitempty" json:"phone,omitempty"`
	Company         string  `bson:"company,omitempty" json:"company,omitempty"`
	Address         string  `bson:"address,omitempty" json:"address,omitempty"`
	GSTIN           string  `bson:"gstin,omitempty" json:"gstin,omitempty"`
	Notes           string  `bson:"notes,omitempty" json:"notes,omitempty"`
	TotalQuotations int     `bson:"total_quotations" json:"totalQuotations"`
	TotalInvoices   int     `bson:"total_invoices" json:"totalInvoices"`
	TotalRevenue    float64 `bson:"total_revenue" json:"totalRevenue"`
	Timestamps      `bson:",inline"`
	Deleted         bool `bson:"deleted" json:"-"`
}

// ClientCounters is a delta applied to a client's aggregates in one $inc.
type ClientCounters struct {
	Quotations int
	Invoices   int
	Revenue    float64
}

// IsZero reports whether applying the delta would change nothing.
func (c ClientCounters) IsZero() bool {
	return c.Quotations == 0 && c.Invoices == 0 && c.Revenue == 0
}

// ClientFilter narrows client listings.
type ClientFilter struct {
	Search string
	PageRequest
}
