package domain

// Direction is the directional intent of a signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
	Hold  Direction = "HOLD"
)

// Opposite returns the reversed trade direction. HOLD has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Hold
	}
}

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntrySide maps a trade direction to the order side used to open it.
func EntrySide(d Direction) OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// CloseSide maps a trade direction to the order side used to close it.
func CloseSide(d Direction) OrderSide {
	if d == Short {
		return Buy
	}
	return Sell
}

// TrendBias is the prevailing higher-timeframe market bias.
type TrendBias string

const (
	BiasBullish TrendBias = "BULLISH"
	BiasBearish TrendBias = "BEARISH"
	BiasNeutral TrendBias = "NEUTRAL"
)

// TimeframeRole names the horizon a candle series serves, independent of the
// concrete interval it is mapped to.
type TimeframeRole string

const (
	RoleEntry   TimeframeRole = "ENTRY"
	RolePrimary TimeframeRole = "PRIMARY"
	RoleTrend1  TimeframeRole = "TREND1"
	RoleTrend2  TimeframeRole = "TREND2"
	RoleContext TimeframeRole = "CONTEXT"
)

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss      CloseReason = "SL"
	CloseReasonTakeProfit    CloseReason = "TP"
	CloseReasonMarket        CloseReason = "Market" // Manual or strategy-based market close
	CloseReasonLiquidation   CloseReason = "Liquidation"
	CloseReasonEmergency     CloseReason = "EMERGENCY" // protection could not be verified
	CloseReasonManual        CloseReason = "MANUAL"
	CloseReasonTrendReversal CloseReason = "TREND_REVERSAL"
	CloseReasonUnknown       CloseReason = "Unknown"
)
