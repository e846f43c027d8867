package lifecycle

import (
	"strings"

	"github.com/shopspring/decimal"

	"buildex/backoffice/internal/errs"
	"buildex/backoffice/internal/models"
)

var hundred = decimal.NewFromInt(100)

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// PriceItems sets Amount = Quantity × Rate on every item, rounded to paise.
func PriceItems(items []models.CostItem) []models.CostItem {
	out := make([]models.CostItem, len(items))
	for i, it := range items {
		amount := decimal.NewFromFloat(it.Quantity).Mul(decimal.NewFromFloat(it.Rate))
		it.Amount = round2(amount)
		out[i] = it
	}
	return out
}

// ComputeSummary derives the totals from priced items. Labour cost is part of
// the subtotal, so GrandTotal = Subtotal + GSTAmount - Discount always holds.
func ComputeSummary(items []models.CostItem, gstRate, discount, labourCost float64) (models.Summary, error) {
	if gstRate < 0 || gstRate > 100 {
		return models.Summary{}, errs.Validation("gst rate must be between 0 and 100")
	}
	if discount < 0 || labourCost < 0 {
		return models.Summary{}, errs.Validation("discount and labour cost must not be negative")
	}

	subtotal := decimal.NewFromFloat(labourCost)
	for _, it := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(it.Amount))
	}
	subtotal = subtotal.Round(2)
	gst := subtotal.Mul(decimal.NewFromFloat(gstRate)).Div(hundred).Round(2)
	disc := decimal.NewFromFloat(discount).Round(2)
	grand := subtotal.Add(gst).Sub(disc)
	if grand.IsNegative() {
		return models.Summary{}, errs.Validation("discount %.2f exceeds the total", discount)
	}

	return models.Summary{
		Subtotal:   round2(subtotal),
		GSTRate:    gstRate,
		GSTAmount:  round2(gst),
		Discount:   round2(disc),
		LabourCost: labourCost,
		GrandTotal: round2(grand),
	}, nil
}

// ValidateItems rejects unnamed lines and negative quantities or rates.
func ValidateItems(items []models.CostItem) error {
	for i, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			return errs.Validation("item %d has no name", i+1)
		}
		if it.Quantity < 0 || it.Rate < 0 {
			return errs.Validation("item %q has a negative quantity or rate", it.Name)
		}
	}
	return nil
}

// Price validates and prices the items and computes the summary in one go.
func Price(items []models.CostItem, gstRate, discount, labourCost float64) ([]models.CostItem, models.Summary, error) {
	if err := ValidateItems(items); err != nil {
		return nil, models.Summary{}, err
	}
	priced := PriceItems(items)
	summary, err := ComputeSummary(priced, gstRate, discount, labourCost)
	return priced, summary, err
}
