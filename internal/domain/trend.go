package domain

import "time"

// TrendContext is the cross-timeframe market context used to gate entries.
// A new value replaces the previous one wholesale on each PRIMARY close;
// readers must treat it as an immutable snapshot.
type TrendContext struct {
	Bias                 TrendBias
	Strength             float64 // Bias strength in [0,1]
	RestrictedDirections map[Direction]bool
	UpdatedAt            time.Time
}

// NeutralTrendContext is the context used before the first PRIMARY close.
func NeutralTrendContext() *TrendContext {
	return &TrendContext{
		Bias:                 BiasNeutral,
		Strength:             0,
		RestrictedDirections: map[Direction]bool{},
	}
}

// Allows reports whether the context permits entries in the given direction.
func (t *TrendContext) Allows(d Direction) bool {
	return !t.RestrictedDirections[d]
}
