package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"fusionbot/internal/ports"
)

// RoundToStep truncates a quantity toward the exchange step size. Truncation,
// never nearest-rounding up: rounding up could exceed balance or exchange
// limits. An invalid step is a data inconsistency and rejects the operation.
func RoundToStep(qty, step float64) (float64, error) {
	if step <= 0 {
		return 0, fmt.Errorf("%w: %v", ports.ErrInvalidStepSize, step)
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	steps := q.Div(s).Floor()
	out, _ := steps.Mul(s).Float64()
	return out, nil
}

// FormatToStep renders a quantity truncated toward the step as the exact
// string sent to the exchange, with the step's decimal precision.
func FormatToStep(qty, step float64) (string, error) {
	if step <= 0 {
		return "", fmt.Errorf("%w: %v", ports.ErrInvalidStepSize, step)
	}
	q := decimal.NewFromFloat(qty)
	s := decimal.NewFromFloat(step)
	truncated := q.Div(s).Floor().Mul(s)
	return truncated.StringFixed(int32(s.Exponent() * -1)), nil
}
