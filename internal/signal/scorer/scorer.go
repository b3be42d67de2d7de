// Package scorer converts an indicator snapshot and a trade direction into a
// weighted confidence score via a gradient threshold ladder per factor.
package scorer

import (
	"fmt"
	"math"

	"fusionbot/internal/domain"
)

// FactorThresholds are the four ladder rungs a normalized metric is compared
// against. Values must be descending: Excellent > Good > OK > Weak.
type FactorThresholds struct {
	Excellent float64 `yaml:"excellent"`
	Good      float64 `yaml:"good"`
	OK        float64 `yaml:"ok"`
	Weak      float64 `yaml:"weak"`
}

// FactorWeight configures one scored factor.
type FactorWeight struct {
	Base       float64          `yaml:"base"`   // Raw points the factor can contribute
	Weight     float64          `yaml:"weight"` // Multiplier; dominant factors carry >1
	Thresholds FactorThresholds `yaml:"thresholds"`
}

// MaxPoints is the ceiling contribution of the factor.
func (w FactorWeight) MaxPoints() float64 {
	return w.Base * w.Weight
}

// Config holds the factor weight table for the scorer.
type Config struct {
	Enabled bool                    `yaml:"enabled"`
	Factors map[string]FactorWeight `yaml:"factors"`
}

// DefaultConfig returns the stock weight table. Reversal strength and
// liquidity-sweep detection carry higher weights so they dominate the ladder.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Factors: map[string]FactorWeight{
			"rsi":              {Base: 10, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 20, Good: 15, OK: 10, Weak: 5}},
			"ema":              {Base: 10, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 1.0, Good: 0.6, OK: 0.3, Weak: 0.1}},
			"volume":           {Base: 5, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 1.0, Good: 0.5, OK: 0.25, Weak: 0.1}},
			"delta":            {Base: 10, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 0.6, Good: 0.4, OK: 0.25, Weak: 0.1}},
			"imbalance":        {Base: 10, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 0.5, Good: 0.35, OK: 0.2, Weak: 0.1}},
			"divergence":       {Base: 10, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 0.8, Good: 0.6, OK: 0.4, Weak: 0.2}},
			"reversalStrength": {Base: 10, Weight: 1.5, Thresholds: FactorThresholds{Excellent: 0.8, Good: 0.6, OK: 0.4, Weak: 0.2}},
			"liquiditySweep":   {Base: 10, Weight: 1.5, Thresholds: FactorThresholds{Excellent: 0.8, Good: 0.6, OK: 0.4, Weak: 0.2}},
			"tfAlignment":      {Base: 10, Weight: 1.0, Thresholds: FactorThresholds{Excellent: 80, Good: 65, OK: 50, Weak: 35}},
		},
	}
}

// Validate checks the weight table for structural errors.
func (c Config) Validate() error {
	for name, w := range c.Factors {
		if w.Base <= 0 || w.Weight <= 0 {
			return fmt.Errorf("factor %q: base and weight must be positive", name)
		}
		t := w.Thresholds
		if !(t.Excellent > t.Good && t.Good > t.OK && t.OK > t.Weak) {
			return fmt.Errorf("factor %q: thresholds must be strictly descending", name)
		}
	}
	return nil
}

// Contribution is the scored result of one factor.
type Contribution struct {
	Points    float64
	MaxPoints float64
	Reason    string
}

// ScoreBreakdown is the full scoring result. Confidence is TotalScore divided
// by MaxPossibleScore, or 0 when no factor was present to score.
type ScoreBreakdown struct {
	TotalScore       float64
	MaxPossibleScore float64
	Confidence       float64
	Contributions    map[string]Contribution
}

// Scorer is a pure function object: identical inputs always produce identical
// breakdowns, which keeps backtests reproducible.
type Scorer struct {
	cfg Config
}

// New creates a scorer from a validated weight table.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Score walks the weight table and awards MaxPoints × multiplier per present
// factor. A disabled scorer returns a perfect score with zero contributions:
// a disabled filter must never block downstream logic.
func (s *Scorer) Score(direction domain.Direction, snap *domain.IndicatorSnapshot) ScoreBreakdown {
	if !s.cfg.Enabled {
		return ScoreBreakdown{Confidence: 1, Contributions: map[string]Contribution{}}
	}

	breakdown := ScoreBreakdown{Contributions: make(map[string]Contribution, len(s.cfg.Factors))}
	for name, weight := range s.cfg.Factors {
		metric, reason, ok := metricFor(name, direction, snap)
		if !ok {
			continue // absent factors are excluded, never scored as zero
		}
		mult := ladderMultiplier(metric, weight.Thresholds)
		maxPts := weight.MaxPoints()
		breakdown.Contributions[name] = Contribution{
			Points:    maxPts * mult,
			MaxPoints: maxPts,
			Reason:    fmt.Sprintf("%s (x%.2f)", reason, mult),
		}
		breakdown.TotalScore += maxPts * mult
		breakdown.MaxPossibleScore += maxPts
	}

	if breakdown.MaxPossibleScore > 0 {
		breakdown.Confidence = breakdown.TotalScore / breakdown.MaxPossibleScore
	}
	return breakdown
}

// ladderMultiplier maps a normalized metric onto the gradient ladder.
func ladderMultiplier(metric float64, t FactorThresholds) float64 {
	switch {
	case metric >= t.Excellent:
		return 1.0
	case metric >= t.Good:
		return 0.75
	case metric >= t.OK:
		return 0.5
	case metric >= t.Weak:
		return 0.25
	default:
		return 0
	}
}

// metricFor converts the snapshot readings backing a factor into the metric
// compared against the ladder. Direction-asymmetric factors (rsi, ema, delta,
// imbalance, divergence) invert for SHORT. Returns ok=false when the factor's
// readings are absent.
func metricFor(factor string, direction domain.Direction, snap *domain.IndicatorSnapshot) (float64, string, bool) {
	short := direction == domain.Short
	switch factor {
	case "rsi":
		if snap.RSI == nil {
			return 0, "", false
		}
		// Distance from the midline in the trade's favor: oversold supports
		// LONG, overbought supports SHORT.
		m := 50 - snap.RSI.Value
		if short {
			m = snap.RSI.Value - 50
		}
		return m, fmt.Sprintf("RSI=%.1f", snap.RSI.Value), true
	case "ema":
		if snap.EMAFast == nil || snap.EMASlow == nil || snap.EMASlow.Value == 0 {
			return 0, "", false
		}
		spread := (snap.EMAFast.Value - snap.EMASlow.Value) / snap.EMASlow.Value * 100
		if short {
			spread = -spread
		}
		return spread, fmt.Sprintf("EMA spread=%+.2f%%", spread), true
	case "delta", "imbalance", "divergence":
		r := snap.Reading(factor)
		if r == nil {
			return 0, "", false
		}
		m := r.Value
		if short {
			m = -m
		}
		return m, fmt.Sprintf("%s=%+.3f", factor, r.Value), true
	case "volume", "reversalStrength", "liquiditySweep", "tfAlignment":
		r := snap.Reading(factor)
		if r == nil {
			return 0, "", false
		}
		// Magnitude-only factors support whichever direction produced them.
		return math.Abs(r.Value), fmt.Sprintf("%s=%.3f", factor, r.Value), true
	default:
		r := snap.Reading(factor)
		if r == nil {
			return 0, "", false
		}
		return r.Value, fmt.Sprintf("%s=%.3f", factor, r.Value), true
	}
}
