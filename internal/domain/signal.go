package domain

import (
	"fmt"
	"time"
)

// TakeProfitLevel is one rung of a laddered take-profit plan.
type TakeProfitLevel struct {
	Level       int     // 1-based ladder position
	Price       float64 // Trigger price
	SizePercent float64 // Percentage of the position to close at this rung
	Hit         bool    // Whether the level has already been filled
}

// Signal is an immutable trade proposal produced by the fusion engine.
// Once built it is never mutated; downstream consumers copy what they need.
type Signal struct {
	Direction   Direction
	Price       float64 // Reference price at signal time (may differ from fill)
	StopLoss    float64
	TakeProfits []TakeProfitLevel
	Confidence  float64 // Weighted factor confidence in [0,1]
	Reason      string
	Timestamp   time.Time
}

// Validate enforces the structural invariants of a signal before it is acted on.
func (s *Signal) Validate() error {
	if s.Direction != Long && s.Direction != Short && s.Direction != Hold {
		return fmt.Errorf("invalid signal direction %q", s.Direction)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal confidence %.4f outside [0,1]", s.Confidence)
	}
	var totalPct float64
	for _, tp := range s.TakeProfits {
		if tp.SizePercent <= 0 {
			return fmt.Errorf("take-profit level %d has non-positive size percent", tp.Level)
		}
		totalPct += tp.SizePercent
	}
	if totalPct > 100 {
		return fmt.Errorf("take-profit size percents sum to %.2f, must not exceed 100", totalPct)
	}
	return nil
}

// StopDistancePercent returns the stop-loss distance as a fraction of the
// signal price. Used to re-anchor the stop against the actual fill price.
func (s *Signal) StopDistancePercent() float64 {
	if s.Price == 0 {
		return 0
	}
	if s.Direction == Short {
		return (s.StopLoss - s.Price) / s.Price
	}
	return (s.Price - s.StopLoss) / s.Price
}
