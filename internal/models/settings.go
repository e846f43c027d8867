package models

import "time"

// SettingsID is the _id of the single settings document.
const SettingsID = "default"

type CompanyProfile struct {
	Name    string `bson:"name" json:"name"`
	Address string `bson:"address,omitempty" json:"address,omitempty"`
	Phone   string `bson:"phone,omitempty" json:"phone,omitempty"`
	Email   string `bson:"email,omitempty" json:"email,omitempty" binding:"omitempty,email"`
	GSTIN   string `bson:"gstin,omitempty" json:"gstin,omitempty"`
	LogoKey string `bson:"logo_key,omitempty" json:"logoKey,omitempty"`
}

// NumberingSettings controls how quotation and invoice numbers are formatted.
type NumberingSettings struct {
	QuotationPrefix string `bson:"quotation_prefix" json:"quotationPrefix"`
	InvoicePrefix   string `bson:"invoice_prefix" json:"invoicePrefix"`
	Digits          int    `bson:"digits" json:"digits" binding:"gte=1,lte=10"`
	IncludeYear     bool   `bson:"include_year" json:"includeYear"`
}

// Settings is the tenant-wide configuration stored in MongoDB. It is loaded at
// startup and refreshed through redis pub/sub.
type Settings struct {
	ID                 string            `bson:"_id" json:"-"`
	Company            CompanyProfile    `bson:"company" json:"company"`
	Numbering          NumberingSettings `bson:"numbering" json:"numbering"`
	DefaultGSTRate     float64           `bson:"default_gst_rate" json:"defaultGstRate" binding:"gte=0,lte=100"`
	QuotationValidDays int               `bson:"quotation_valid_days" json:"quotationValidDays" binding:"gte=0"`
	PaymentTermsDays   int               `bson:"payment_terms_days" json:"paymentTermsDays" binding:"gte=0"`
	Terms              string            `bson:"terms,omitempty" json:"terms,omitempty"`
	UpdatedAt          time.Time         `bson:"updated_at" json:"updatedAt"`
}

// DefaultSettings is written the first time the service starts against an empty database.
func DefaultSettings() Settings {
	return Settings{
		ID:      SettingsID,
		Company: CompanyProfile{Name: "BuildEx"},
		Numbering: NumberingSettings{
			QuotationPrefix: "QT-",
			InvoicePrefix:   "INV-",
			Digits:          4,
			IncludeYear:     true,
		},
		DefaultGSTRate:     18,
		QuotationValidDays: 30,
		PaymentTermsDays:   15,
	}
}
