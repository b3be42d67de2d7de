package domain

import "time"

// StopLossState tracks the protective stop of an open position.
type StopLossState struct {
	Price        float64 // Current stop price
	InitialPrice float64 // Stop price at entry, before breakeven/trailing moves
	IsBreakeven  bool    // Stop has been moved to (or past) the entry price
	IsTrailing   bool    // Stop follows favorable price movement
	OrderID      *string // Exchange order id backing the stop (nullable in DB)
}

// Position represents the single trading position held by the bot.
type Position struct {
	ID         int64     // Unique identifier for the position (usually from DB)
	Symbol     string    // Trading symbol (e.g., "ETHUSDT")
	Side       Direction // LONG or SHORT
	EntryPrice float64   // Price at which the position was entered
	ExitPrice  float64   // Price at which the position was exited (0 if open)
	Quantity   float64   // Original size of the position
	Remaining  float64   // Quantity still open after partial take-profit fills
	Leverage   int       // Leverage used for the position

	StopLoss    StopLossState
	TakeProfits []TakeProfitLevel // Laddered take-profit plan with hit flags

	EntryTime   time.Time      // Timestamp when the position was entered
	ExitTime    time.Time      // Timestamp when the position was exited (zero value if open)
	Status      PositionStatus // Current status (open, closed)
	PNL         float64        // Profit and Loss for the position (calculated on close)
	CloseReason CloseReason    `db:"close_reason"`

	TrailingDistance float64 `db:"trailing_distance"` // Distance for trailing stop in price units
}

// IsOpen checks if the position status is open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// UnrealizedPNL computes the mark-to-market profit for the remaining quantity.
func (p *Position) UnrealizedPNL(price float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - price) * p.Remaining
	}
	return (price - p.EntryPrice) * p.Remaining
}

// NextTakeProfit returns the lowest unhit ladder rung, or nil when exhausted.
func (p *Position) NextTakeProfit() *TakeProfitLevel {
	for i := range p.TakeProfits {
		if !p.TakeProfits[i].Hit {
			return &p.TakeProfits[i]
		}
	}
	return nil
}
