// Package retest detects missed price impulses and manages the time-boxed
// Fibonacci retracement zones a deferred signal must satisfy before entry.
package retest

import (
	"fmt"
	"time"

	"fusionbot/internal/domain"
)

const impulseWindow = 5 // candles inspected for an impulse

// Config holds the retest gate parameters.
type Config struct {
	MinImpulsePercent      float64 `yaml:"min_impulse_percent"` // e.g. 0.5 for 0.5%
	FibStart               float64 `yaml:"fib_start"`           // retracement band start, e.g. 0.5
	FibEnd                 float64 `yaml:"fib_end"`             // retracement band end, e.g. 0.618
	MaxRetestWaitMs        int64   `yaml:"max_retest_wait_ms"`
	VolumeMultiplier       float64 `yaml:"volume_multiplier"` // re-entry volume must be <= avg * multiplier
	RequireStructureIntact bool    `yaml:"require_structure_intact"`
}

// MaxRetestWait is the wall-clock lifetime of a pending zone.
func (c Config) MaxRetestWait() time.Duration {
	return time.Duration(c.MaxRetestWaitMs) * time.Millisecond
}

// DefaultConfig returns the stock retest parameters: a 50-61.8% band.
func DefaultConfig() Config {
	return Config{
		MinImpulsePercent:      0.5,
		FibStart:               0.5,
		FibEnd:                 0.618,
		MaxRetestWaitMs:        (30 * time.Minute).Milliseconds(),
		VolumeMultiplier:       1.0,
		RequireStructureIntact: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinImpulsePercent <= 0 {
		return fmt.Errorf("min impulse percent must be positive")
	}
	if c.FibStart <= 0 || c.FibEnd <= c.FibStart || c.FibEnd >= 1 {
		return fmt.Errorf("fib band [%.3f, %.3f] must satisfy 0 < start < end < 1", c.FibStart, c.FibEnd)
	}
	if c.MaxRetestWaitMs <= 0 {
		return fmt.Errorf("max retest wait must be positive")
	}
	if c.VolumeMultiplier <= 0 {
		return fmt.Errorf("volume multiplier must be positive")
	}
	return nil
}

// Zone is a pending retracement band created for a deferred signal. It is
// consumed on a calm re-entry or expires by wall clock, whichever first.
type Zone struct {
	Symbol         string
	Direction      domain.Direction
	ZoneLow        float64
	ZoneHigh       float64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	OriginalSignal *domain.Signal
}

// Contains reports whether the price sits inside the band.
func (z *Zone) Contains(price float64) bool {
	return price >= z.ZoneLow && price <= z.ZoneHigh
}

// Expired reports whether the zone has outlived its wait window.
func (z *Zone) Expired(now time.Time) bool {
	return now.After(z.ExpiresAt)
}

// StructureCheck re-validates that market structure still supports the
// original direction at retest time. Optional.
type StructureCheck func(direction domain.Direction) bool

// Gate owns the pending zones, keyed by symbol. Single-writer: only the
// dispatcher goroutine touches it.
type Gate struct {
	cfg   Config
	zones map[string]*Zone
}

// New creates a retest gate.
func New(cfg Config) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Gate{cfg: cfg, zones: make(map[string]*Zone)}, nil
}

// DetectImpulse looks at the last impulseWindow candles and reports whether
// the move from the window's open to the latest close clears the threshold.
// Returns the signed move percent alongside the verdict.
func (g *Gate) DetectImpulse(candles []*domain.Kline) (bool, float64) {
	if len(candles) < impulseWindow {
		return false, 0
	}
	window := candles[len(candles)-impulseWindow:]
	openOfWindow := window[0].Open
	if openOfWindow == 0 {
		return false, 0
	}
	movePct := (window[impulseWindow-1].Close - openOfWindow) / openOfWindow * 100
	if movePct >= g.cfg.MinImpulsePercent || -movePct >= g.cfg.MinImpulsePercent {
		return true, movePct
	}
	return false, movePct
}

// CreateZone computes the Fibonacci retracement band for the impulse covered
// by the last impulseWindow candles and stores it for the signal's symbol.
// The band is oriented against the trade direction: LONG waits for a
// retracement down, SHORT for a retracement up.
func (g *Gate) CreateZone(symbol string, sig *domain.Signal, candles []*domain.Kline, now time.Time) (*Zone, error) {
	if len(candles) < impulseWindow {
		return nil, fmt.Errorf("need %d candles to build a retest zone, have %d", impulseWindow, len(candles))
	}
	window := candles[len(candles)-impulseWindow:]
	impulseLow, impulseHigh := window[0].Low, window[0].High
	for _, k := range window[1:] {
		if k.Low < impulseLow {
			impulseLow = k.Low
		}
		if k.High > impulseHigh {
			impulseHigh = k.High
		}
	}
	impulseRange := impulseHigh - impulseLow
	if impulseRange <= 0 {
		return nil, fmt.Errorf("degenerate impulse range at %s", symbol)
	}

	zone := &Zone{
		Symbol:         symbol,
		Direction:      sig.Direction,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.cfg.MaxRetestWait()),
		OriginalSignal: sig,
	}
	if sig.Direction == domain.Long {
		// Retrace down from the impulse high.
		zone.ZoneLow = impulseHigh - impulseRange*g.cfg.FibEnd
		zone.ZoneHigh = impulseHigh - impulseRange*g.cfg.FibStart
	} else {
		// Retrace up from the impulse low.
		zone.ZoneLow = impulseLow + impulseRange*g.cfg.FibStart
		zone.ZoneHigh = impulseLow + impulseRange*g.cfg.FibEnd
	}

	g.zones[symbol] = zone
	return zone, nil
}

// PendingZone returns the live zone for a symbol after lazily purging it if
// expired. Returns nil when none is pending.
func (g *Gate) PendingZone(symbol string, now time.Time) *Zone {
	zone, ok := g.zones[symbol]
	if !ok {
		return nil
	}
	if zone.Expired(now) {
		delete(g.zones, symbol)
		return nil
	}
	return zone
}

// CheckRetest consumes the pending zone when price re-enters the band calmly:
// current volume at or below the average times the configured multiplier, and
// (if required) market structure still supporting the original direction.
// Returns the original signal on a satisfied retest, nil otherwise.
func (g *Gate) CheckRetest(symbol string, price, currentVolume, avgVolume float64, structure StructureCheck, now time.Time) (*domain.Signal, string) {
	zone := g.PendingZone(symbol, now)
	if zone == nil {
		return nil, ""
	}
	if !zone.Contains(price) {
		return nil, fmt.Sprintf("price %.4f outside zone [%.4f, %.4f]", price, zone.ZoneLow, zone.ZoneHigh)
	}
	if avgVolume > 0 && currentVolume > avgVolume*g.cfg.VolumeMultiplier {
		// A high-volume touch is a fresh breakout, not a calm re-entry.
		return nil, fmt.Sprintf("volume %.2f above average %.2f, too aggressive", currentVolume, avgVolume)
	}
	if g.cfg.RequireStructureIntact && structure != nil && !structure(zone.Direction) {
		delete(g.zones, symbol) // structure broke, the setup is dead
		return nil, "structure no longer supports direction, zone dropped"
	}

	delete(g.zones, symbol)
	return zone.OriginalSignal, "retest satisfied"
}

// Sweep removes every expired zone. Called periodically by the scheduler in
// addition to the lazy purge on check.
func (g *Gate) Sweep(now time.Time) int {
	removed := 0
	for symbol, zone := range g.zones {
		if zone.Expired(now) {
			delete(g.zones, symbol)
			removed++
		}
	}
	return removed
}
