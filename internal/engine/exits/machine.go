// Package exits implements the per-position exit state machine. Evaluation is
// pure over (position, state, price, indicators); the lifecycle manager
// applies the emitted actions, the machine never invents side effects.
package exits

import (
	"fmt"

	"fusionbot/internal/domain"
)

// State is the lifecycle stage of an open position.
type State int

const (
	StateUnprotected State = iota // entry filled, protection not yet verified
	StateProtected                // SL/TP confirmed on the exchange
	StateTrailing                 // first take-profit hit, stop trails price
	StateClosing                  // terminal: a full close has been requested
)

func (s State) String() string {
	switch s {
	case StateUnprotected:
		return "OPEN_UNPROTECTED"
	case StateProtected:
		return "OPEN_PROTECTED"
	case StateTrailing:
		return "TRAILING_ACTIVE"
	case StateClosing:
		return "CLOSING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds the exit parameters.
type Config struct {
	BreakevenBufferPercent  float64 `yaml:"breakeven_buffer_percent"`  // price must clear entry by this % first
	TrailingDistancePercent float64 `yaml:"trailing_distance_percent"` // trail distance as % of entry price
}

// DefaultConfig returns the stock exit parameters.
func DefaultConfig() Config {
	return Config{
		BreakevenBufferPercent:  0.3,
		TrailingDistancePercent: 0.5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BreakevenBufferPercent <= 0 {
		return fmt.Errorf("breakeven buffer percent must be positive")
	}
	if c.TrailingDistancePercent <= 0 {
		return fmt.Errorf("trailing distance percent must be positive")
	}
	return nil
}

// Evaluation is the outcome of one price-update pass.
type Evaluation struct {
	NewState       State
	Actions        []domain.ExitAction
	HitTakeProfits []int // Ladder levels crossed during this pass, in order
}

// Machine evaluates exits. Stateless; per-position state travels in and out.
type Machine struct {
	cfg Config
}

// New creates an exit state machine.
func New(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{cfg: cfg}, nil
}

// Evaluate inspects an open position against the latest price.
//
// A stop-loss touch transitions directly to CLOSING regardless of any other
// state. Take-profit hits close the rung's share of the remaining quantity;
// the first hit also activates the trailing stop. A breakeven move fires once
// price clears the configured buffer past entry.
func (m *Machine) Evaluate(pos *domain.Position, state State, price float64) Evaluation {
	ev := Evaluation{NewState: state}
	if state == StateClosing || !pos.IsOpen() {
		return ev
	}

	long := pos.Side == domain.Long

	// Stop-loss touch beats everything.
	if stopTouched(long, price, pos.StopLoss.Price) {
		ev.NewState = StateClosing
		ev.Actions = append(ev.Actions, domain.CloseFull(domain.CloseReasonStopLoss))
		return ev
	}

	// Take-profit ladder.
	remainingRungs := 0
	for i := range pos.TakeProfits {
		if !pos.TakeProfits[i].Hit {
			remainingRungs++
		}
	}
	for i := range pos.TakeProfits {
		tp := &pos.TakeProfits[i]
		if tp.Hit || !tpTouched(long, price, tp.Price) {
			continue
		}
		ev.HitTakeProfits = append(ev.HitTakeProfits, tp.Level)
		remainingRungs--
		if remainingRungs == 0 {
			// Final rung: close out whatever remains.
			ev.NewState = StateClosing
			ev.Actions = append(ev.Actions, domain.CloseFull(domain.CloseReasonTakeProfit))
			return ev
		}
		ev.Actions = append(ev.Actions, domain.ClosePartial(tp.SizePercent, domain.CloseReasonTakeProfit))
		if ev.NewState != StateTrailing {
			// First hit activates trailing.
			distance := pos.EntryPrice * m.cfg.TrailingDistancePercent / 100
			ev.Actions = append(ev.Actions, domain.ActivateTrailing(distance))
			ev.NewState = StateTrailing
		}
	}

	// Breakeven move, once. bestStop carries the tightest stop already emitted
	// this pass so a later trailing move can never loosen it back.
	bestStop := pos.StopLoss.Price
	if !pos.StopLoss.IsBreakeven && clearedBuffer(long, price, pos.EntryPrice, m.cfg.BreakevenBufferPercent) {
		ev.Actions = append(ev.Actions, domain.MoveStop(pos.EntryPrice))
		if improves(long, pos.EntryPrice, bestStop) {
			bestStop = pos.EntryPrice
		}
	}

	// Trailing stop follows favorable movement only.
	if (state == StateTrailing || ev.NewState == StateTrailing) && pos.StopLoss.IsTrailing {
		trail := trailingStop(long, price, pos.TrailingDistance)
		if improves(long, trail, bestStop) {
			ev.Actions = append(ev.Actions, domain.MoveStop(trail))
		}
	}

	return ev
}

func stopTouched(long bool, price, stop float64) bool {
	if stop <= 0 {
		return false
	}
	if long {
		return price <= stop
	}
	return price >= stop
}

func tpTouched(long bool, price, tp float64) bool {
	if long {
		return price >= tp
	}
	return price <= tp
}

func clearedBuffer(long bool, price, entry, bufferPct float64) bool {
	if long {
		return price >= entry*(1+bufferPct/100)
	}
	return price <= entry*(1-bufferPct/100)
}

func trailingStop(long bool, price, distance float64) float64 {
	if long {
		return price - distance
	}
	return price + distance
}

// improves reports whether the candidate stop is tighter than the current one
// in the favorable direction.
func improves(long bool, candidate, current float64) bool {
	if long {
		return candidate > current
	}
	return candidate < current
}
