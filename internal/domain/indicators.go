package domain

// FactorReading is one named observation handed to the confidence scorer.
// Absent factors are represented by nil pointers in IndicatorSnapshot and are
// excluded from scoring entirely, never treated as zero.
type FactorReading struct {
	Value float64
	Note  string // Optional human-readable context for the reading
}

// IndicatorSnapshot carries the per-timeframe numeric readings supplied to the
// core by the indicator services. All fields are optional.
type IndicatorSnapshot struct {
	RSI              *FactorReading
	EMAFast          *FactorReading
	EMASlow          *FactorReading
	Volume           *FactorReading // Current volume relative to average (ratio)
	Delta            *FactorReading // Buy/sell volume delta, normalized
	Imbalance        *FactorReading // Order-book imbalance, normalized
	Divergence       *FactorReading // RSI/price divergence strength
	ReversalStrength *FactorReading // ZigZag reversal strength
	LiquiditySweep   *FactorReading // Liquidity-grab detection score
	TFAlignment      *FactorReading // Cross-timeframe alignment score (0-100)
	ATR              *FactorReading
}

// Reading returns a snapshot factor by its configured name, nil if absent.
func (s *IndicatorSnapshot) Reading(name string) *FactorReading {
	switch name {
	case "rsi":
		return s.RSI
	case "emaFast":
		return s.EMAFast
	case "emaSlow":
		return s.EMASlow
	case "volume":
		return s.Volume
	case "delta":
		return s.Delta
	case "imbalance":
		return s.Imbalance
	case "divergence":
		return s.Divergence
	case "reversalStrength":
		return s.ReversalStrength
	case "liquiditySweep":
		return s.LiquiditySweep
	case "tfAlignment":
		return s.TFAlignment
	case "atr":
		return s.ATR
	default:
		return nil
	}
}

// TimeframeIndicators groups the readings the alignment gate inspects for one
// timeframe role.
type TimeframeIndicators struct {
	Role    TimeframeRole
	EMAFast float64
	EMASlow float64
	Close   float64
	HasData bool // False when the underlying candle fetch failed
}
