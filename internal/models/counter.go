package models

const (
	CounterQuotation = "quotation"
	CounterInvoice   = "invoice"
)

// Counter holds the last issued sequence number for a named series.
type Counter struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}
