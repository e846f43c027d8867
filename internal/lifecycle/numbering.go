package lifecycle

import (
	"fmt"
	"time"

	"buildex/backoffice/internal/models"
)

// FormatNumber renders a sequence number, e.g. QT-2026-0001 or INV-0042.
// Sequences wider than digits are printed in full.
func FormatNumber(prefix string, seq int64, digits int, includeYear bool, now time.Time) string {
	if digits < 1 {
		digits = 1
	}
	n := fmt.Sprintf("%0*d", digits, seq)
	if includeYear {
		return fmt.Sprintf("%s%d-%s", prefix, now.Year(), n)
	}
	return prefix + n
}

// QuotationNumber formats seq with the quotation prefix from settings.
func QuotationNumber(s models.NumberingSettings, seq int64, now time.Time) string {
	return FormatNumber(s.QuotationPrefix, seq, s.Digits, s.IncludeYear, now)
}

// InvoiceNumber formats seq with the invoice prefix from settings.
func InvoiceNumber(s models.NumberingSettings, seq int64, now time.Time) string {
	return FormatNumber(s.InvoicePrefix, seq, s.Digits, s.IncludeYear, now)
}
