package pdf

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"

	"buildex/backoffice/internal/models"
)

//go:embed templates/quotation.html
var templateFS embed.FS

var quotationTemplate = template.Must(template.New("quotation.html").Funcs(template.FuncMap{
	"money": money,
	"inc":   func(i int) int { return i + 1 },
	"date": func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("02 Jan 2006")
	},
}).ParseFS(templateFS, "templates/quotation.html"))

// QuotationDocument is everything printed on a quotation.
type QuotationDocument struct {
	Quotation *models.Quotation
	Client    *models.Client
	Company   models.CompanyProfile
	LogoURL   string
}

// RenderQuotationHTML fills the quotation template.
func RenderQuotationHTML(doc QuotationDocument) ([]byte, error) {
	var buf bytes.Buffer
	if err := quotationTemplate.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("failed to render quotation html: %w", err)
	}
	return buf.Bytes(), nil
}

// money formats an amount with two decimals and Indian digit grouping (12,34,567.89).
func money(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2)
	neg := false
	if s[0] == '-' {
		neg, s = true, s[1:]
	}
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	if len(intPart) > 3 {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		if head != "" {
			groups = append([]string{head}, groups...)
		}
		intPart = ""
		for _, g := range groups {
			intPart += g + ","
		}
		intPart += tail
	}
	if neg {
		return "-" + intPart + frac
	}
	return intPart + frac
}
