// Package alignment scores cross-timeframe directional agreement and runs the
// higher-timeframe trend-confirmation step used to gate entries.
package alignment

import (
	"fmt"
	"math"

	"fusionbot/internal/domain"
)

// TimeframeWeight assigns an integer share of the 0-100 alignment score to a
// timeframe role. Weights across all configured roles should sum to 100.
type TimeframeWeight struct {
	Role   domain.TimeframeRole `yaml:"role"`
	Weight int                  `yaml:"weight"`
}

// Config holds the alignment gate parameters.
type Config struct {
	Timeframes        []TimeframeWeight `yaml:"timeframes"`
	MinAlignmentScore int               `yaml:"min_score"`

	// Trend-confirmation weights. Applied to independently fetched
	// higher-timeframe data; must sum to 1.
	ConfirmPrimaryWeight float64 `yaml:"confirm_primary_weight"`
	ConfirmTrend1Weight  float64 `yaml:"confirm_trend1_weight"`
	ConfirmTrend2Weight  float64 `yaml:"confirm_trend2_weight"`
	MinConfirmation      float64 `yaml:"min_confirmation"`
}

// DefaultConfig returns the stock alignment parameters.
func DefaultConfig() Config {
	return Config{
		Timeframes: []TimeframeWeight{
			{Role: domain.RolePrimary, Weight: 40},
			{Role: domain.RoleTrend1, Weight: 35},
			{Role: domain.RoleTrend2, Weight: 25},
		},
		MinAlignmentScore:    60,
		ConfirmPrimaryWeight: 0.4,
		ConfirmTrend1Weight:  0.35,
		ConfirmTrend2Weight:  0.25,
		MinConfirmation:      0.6,
	}
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("at least one timeframe weight is required")
	}
	total := 0
	for _, tf := range c.Timeframes {
		if tf.Weight <= 0 {
			return fmt.Errorf("timeframe %s: weight must be positive", tf.Role)
		}
		total += tf.Weight
	}
	if total != 100 {
		return fmt.Errorf("timeframe weights sum to %d, expected 100", total)
	}
	if c.MinAlignmentScore < 0 || c.MinAlignmentScore > 100 {
		return fmt.Errorf("min alignment score %d outside [0,100]", c.MinAlignmentScore)
	}
	wsum := c.ConfirmPrimaryWeight + c.ConfirmTrend1Weight + c.ConfirmTrend2Weight
	if math.Abs(wsum-1) > 1e-9 {
		return fmt.Errorf("confirmation weights sum to %.3f, expected 1.0", wsum)
	}
	return nil
}

// TimeframeContribution records how one timeframe scored.
type TimeframeContribution struct {
	Role   domain.TimeframeRole
	Points int
	Max    int
	Reason string
}

// Result is the outcome of one alignment evaluation. Produced fresh per call
// and never mutated after return.
type Result struct {
	Score         int // integer in [0,100]
	Aligned       bool
	Contributions []TimeframeContribution
}

// Gate evaluates cross-timeframe alignment. Stateless and deterministic.
type Gate struct {
	cfg Config
}

// New creates an alignment gate from a validated config.
func New(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg}, nil
}

// CalculateAlignment awards each timeframe's weight based on its EMA posture
// relative to the trade direction. The PRIMARY timeframe splits its weight
// 60/40 across the fast/slow EMA comparison and the price-vs-fast-EMA check,
// awarding partial credit per sub-condition. Other timeframes award full
// weight only when both sub-conditions hold.
func (g *Gate) CalculateAlignment(direction domain.Direction, currentPrice float64, perTimeframe map[domain.TimeframeRole]domain.TimeframeIndicators) Result {
	res := Result{Contributions: make([]TimeframeContribution, 0, len(g.cfg.Timeframes))}

	for _, tf := range g.cfg.Timeframes {
		ind, found := perTimeframe[tf.Role]
		contrib := TimeframeContribution{Role: tf.Role, Max: tf.Weight}
		if !found || !ind.HasData {
			contrib.Reason = "no data"
			res.Contributions = append(res.Contributions, contrib)
			continue
		}

		emaAgrees := emaSupports(direction, ind)
		priceAgrees := priceSupports(direction, currentPrice, ind)

		if tf.Role == domain.RolePrimary {
			// 60/40 split across the two sub-conditions.
			if emaAgrees {
				contrib.Points += int(math.Round(float64(tf.Weight) * 0.6))
			}
			if priceAgrees {
				contrib.Points += int(math.Round(float64(tf.Weight) * 0.4))
			}
			contrib.Reason = fmt.Sprintf("ema=%v price=%v", emaAgrees, priceAgrees)
		} else {
			// Full weight only when every sub-condition holds.
			if emaAgrees && priceAgrees {
				contrib.Points = tf.Weight
			}
			contrib.Reason = fmt.Sprintf("ema=%v price=%v", emaAgrees, priceAgrees)
		}

		res.Score += contrib.Points
		res.Contributions = append(res.Contributions, contrib)
	}

	if res.Score > 100 {
		res.Score = 100
	}
	res.Aligned = res.Score >= g.cfg.MinAlignmentScore
	return res
}

// emaSupports reports whether the timeframe's EMA ordering favors the direction.
func emaSupports(direction domain.Direction, ind domain.TimeframeIndicators) bool {
	if direction == domain.Short {
		return ind.EMAFast < ind.EMASlow
	}
	return ind.EMAFast > ind.EMASlow
}

// priceSupports reports whether price sits on the right side of the fast EMA.
func priceSupports(direction domain.Direction, price float64, ind domain.TimeframeIndicators) bool {
	ref := price
	if ref == 0 {
		ref = ind.Close
	}
	if direction == domain.Short {
		return ref < ind.EMAFast
	}
	return ref > ind.EMAFast
}
