// Package ledger validates weight conservation across stage boundaries.
// Every check is a pure function returning nil or a *models.Violation with
// the numbers involved.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"toastem/internal/models"
)

// Tolerance is the allowed excess of a weight over its reference. Abs is in
// kilograms, Pct is a fraction (0.01 = 1%). A zero Tolerance allows no excess.
type Tolerance struct {
	Abs float64
	Pct float64
}

// Percent builds a percentage tolerance
func Percent(pct float64) Tolerance { return Tolerance{Pct: pct / 100} }

// Absolute builds an absolute tolerance in kilograms
func Absolute(kg float64) Tolerance { return Tolerance{Abs: kg} }

// None allows no excess at all
var None = Tolerance{}

// Limit returns the highest weight allowed against reference. When both an
// absolute and a percentage band are declared the stricter one wins.
func (t Tolerance) Limit(reference float64) decimal.Decimal {
	ref := decimal.NewFromFloat(reference)
	limit := ref
	bands := 0
	if t.Pct > 0 {
		limit = ref.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(t.Pct)))
		bands++
	}
	if t.Abs > 0 {
		abs := ref.Add(decimal.NewFromFloat(t.Abs))
		if bands == 0 || abs.LessThan(limit) {
			limit = abs
		}
	}
	return limit
}

// ValidateConservation fails when output exceeds reference beyond tol
func ValidateConservation(field string, output, reference float64, tol Tolerance) *models.Violation {
	limit := tol.Limit(reference)
	if decimal.NewFromFloat(output).LessThanOrEqual(limit) {
		return nil
	}
	limitF, _ := limit.Float64()
	return &models.Violation{
		Field: field,
		Code:  models.CodeExceedsReference,
		Message: fmt.Sprintf("%s kg exceeds the allowed %s kg (reference %s kg)",
			format(output), limit.StringFixed(2), format(reference)),
		Values: map[string]float64{
			"output":    output,
			"reference": reference,
			"limit":     limitF,
		},
	}
}

// ValidateSum fails when the parts do not add up to total within absTol kg
func ValidateSum(field string, parts []float64, total, absTol float64) *models.Violation {
	sum := decimal.Zero
	for _, part := range parts {
		sum = sum.Add(decimal.NewFromFloat(part))
	}
	diff := sum.Sub(decimal.NewFromFloat(total)).Abs()
	if diff.LessThanOrEqual(decimal.NewFromFloat(absTol)) {
		return nil
	}
	sumF, _ := sum.Float64()
	diffF, _ := diff.Float64()
	return &models.Violation{
		Field: field,
		Code:  models.CodeSumMismatch,
		Message: fmt.Sprintf("parts add up to %s kg but %s kg was declared (tolerance %s kg)",
			sum.String(), format(total), format(absTol)),
		Values: map[string]float64{
			"sum":        sumF,
			"total":      total,
			"tolerance":  absTol,
			"difference": diffF,
		},
	}
}

// ValidatePositive fails when a required weight is zero or negative
func ValidatePositive(field string, weight float64) *models.Violation {
	if weight > 0 {
		return nil
	}
	return &models.Violation{
		Field:   field,
		Code:    models.CodeNonPositive,
		Message: fmt.Sprintf("weight must be greater than zero, got %s kg", format(weight)),
		Values:  map[string]float64{"weight": weight},
	}
}

// ValidateAvailable fails when requested exceeds what is still available
func ValidateAvailable(field string, requested, available float64) *models.Violation {
	if decimal.NewFromFloat(requested).LessThanOrEqual(decimal.NewFromFloat(available)) {
		return nil
	}
	return &models.Violation{
		Field: field,
		Code:  models.CodeExceedsAvailable,
		Message: fmt.Sprintf("%s kg requested but only %s kg is available",
			format(requested), format(available)),
		Values: map[string]float64{
			"requested": requested,
			"available": available,
		},
	}
}

// Remaining subtracts used weights from total without float drift
func Remaining(total float64, used ...float64) float64 {
	rest := decimal.NewFromFloat(total)
	for _, u := range used {
		rest = rest.Sub(decimal.NewFromFloat(u))
	}
	out, _ := rest.Float64()
	return out
}

func format(kg float64) string {
	return decimal.NewFromFloat(kg).String()
}

// Sum adds weights without float drift
func Sum(weights ...float64) float64 {
	total := decimal.Zero
	for _, w := range weights {
		total = total.Add(decimal.NewFromFloat(w))
	}
	out, _ := total.Float64()
	return out
}
