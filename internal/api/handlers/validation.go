package handlers

import (
	"math"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"buildex/backoffice/internal/utils"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("money", validMoney)
		_ = v.RegisterValidation("sixid", validSixID)
	}
}

// validMoney accepts non-negative amounts with at most two decimal places.
func validMoney(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	d := decimal.NewFromFloat(f)
	return !d.IsNegative() && d.Equal(d.Round(2))
}

// validSixID accepts a non-zero utils.SixID or its text form.
func validSixID(fl validator.FieldLevel) bool {
	switch v := fl.Field().Interface().(type) {
	case utils.SixID:
		return !v.IsZero()
	case string:
		_, err := utils.ParseSixID(v)
		return err == nil
	}
	return false
}
