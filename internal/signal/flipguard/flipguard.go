// Package flipguard implements the time and candle based cooldown that
// prevents rapid direction reversal after an executed signal.
package flipguard

import (
	"fmt"
	"time"

	"fusionbot/internal/domain"
)

// Config holds the cooldown parameters.
type Config struct {
	CooldownCandles             int     `yaml:"cooldown_candles"`
	CooldownMs                  int64   `yaml:"cooldown_ms"`
	RequiredConfirmationCandles int     `yaml:"required_confirmation_candles"`
	OverrideConfidenceThreshold float64 `yaml:"override_confidence_threshold"`
	StrongReversalRSIThreshold  float64 `yaml:"strong_reversal_rsi_threshold"`
}

// Cooldown is the wall-clock cooldown window.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMs) * time.Millisecond
}

// DefaultConfig returns the stock cooldown parameters.
func DefaultConfig() Config {
	return Config{
		CooldownCandles:             3,
		CooldownMs:                  (5 * time.Minute).Milliseconds(),
		RequiredConfirmationCandles: 2,
		OverrideConfidenceThreshold: 0.85,
		StrongReversalRSIThreshold:  25,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.CooldownCandles < 0 || c.CooldownMs < 0 {
		return fmt.Errorf("cooldown values cannot be negative")
	}
	if c.OverrideConfidenceThreshold < 0 || c.OverrideConfidenceThreshold > 1 {
		return fmt.Errorf("override confidence threshold %.2f outside [0,1]", c.OverrideConfidenceThreshold)
	}
	if c.StrongReversalRSIThreshold < 0 || c.StrongReversalRSIThreshold > 50 {
		return fmt.Errorf("strong reversal RSI threshold %.1f outside [0,50]", c.StrongReversalRSIThreshold)
	}
	return nil
}

// Decision explains a block/allow verdict.
type Decision struct {
	Blocked bool
	Reason  string
}

// Guard tracks the last executed signal. It is not safe for concurrent use;
// the single dispatcher goroutine owns it.
type Guard struct {
	cfg Config

	lastDirection     domain.Direction
	lastSignalAt      time.Time
	candlesSinceLast  int
	hasExecutedSignal bool
}

// New creates a flip guard.
func New(cfg Config) (*Guard, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Guard{cfg: cfg}, nil
}

// OnCandle must be called once per closed candle on the entry timeframe.
func (g *Guard) OnCandle() {
	if g.hasExecutedSignal {
		g.candlesSinceLast++
	}
}

// RecordSignal resets the cooldown state. Callers must invoke it exactly once
// per executed signal, never for merely evaluated ones.
func (g *Guard) RecordSignal(direction domain.Direction, at time.Time) {
	g.lastDirection = direction
	g.lastSignalAt = at
	g.candlesSinceLast = 0
	g.hasExecutedSignal = true
}

// ShouldBlock reports whether a new signal must be suppressed. rsi may be nil
// and recentCandles may be empty; the corresponding overrides are then simply
// unavailable.
func (g *Guard) ShouldBlock(newDirection domain.Direction, confidence float64, rsi *float64, recentCandles []*domain.Kline, now time.Time) Decision {
	if !g.hasExecutedSignal || newDirection == domain.Hold || newDirection == g.lastDirection {
		return Decision{}
	}

	elapsed := now.Sub(g.lastSignalAt)
	if elapsed >= g.cfg.Cooldown() || g.candlesSinceLast >= g.cfg.CooldownCandles {
		return Decision{}
	}

	// Inside the cooldown window. Any override lets the flip through.
	if confidence >= g.cfg.OverrideConfidenceThreshold {
		return Decision{Reason: fmt.Sprintf("override: confidence %.2f >= %.2f", confidence, g.cfg.OverrideConfidenceThreshold)}
	}
	if rsi != nil && rsiExtreme(newDirection, *rsi, g.cfg.StrongReversalRSIThreshold) {
		return Decision{Reason: fmt.Sprintf("override: extreme RSI %.1f", *rsi)}
	}
	if g.confirmationRun(newDirection, recentCandles) {
		return Decision{Reason: fmt.Sprintf("override: %d confirmation candles", g.cfg.RequiredConfirmationCandles)}
	}

	return Decision{
		Blocked: true,
		Reason: fmt.Sprintf("flip %s->%s within cooldown (%.0fs elapsed, %d candles)",
			g.lastDirection, newDirection, elapsed.Seconds(), g.candlesSinceLast),
	}
}

// rsiExtreme reports an extreme-reversal RSI reading: at or below the
// threshold for LONG, at or above 100-threshold for SHORT.
func rsiExtreme(direction domain.Direction, rsi, threshold float64) bool {
	if direction == domain.Short {
		return rsi >= 100-threshold
	}
	return rsi <= threshold
}

// confirmationRun checks for an unbroken run of candles closing in the new
// direction at the tail of the recent history.
func (g *Guard) confirmationRun(direction domain.Direction, candles []*domain.Kline) bool {
	need := g.cfg.RequiredConfirmationCandles
	if need <= 0 || len(candles) < need {
		return false
	}
	for _, k := range candles[len(candles)-need:] {
		if direction == domain.Long && !k.IsBullish() {
			return false
		}
		if direction == domain.Short && !k.IsBearish() {
			return false
		}
	}
	return true
}
