package ports

import (
	"context"
	"time"

	"fusionbot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (might be 0 for market orders initially)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., MARKET, STOP_MARKET, TAKE_PROFIT_MARKET)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// ProtectionState is the exchange-side view of the protective orders guarding
// an open position, as returned by a verification poll.
type ProtectionState struct {
	HasStopLoss      bool
	HasTakeProfit    bool
	StopLossOrders   []OrderResponse
	TakeProfitOrders []OrderResponse
	ActiveOrders     int
}

// TakeProfitOrderSpec describes one rung of a laddered take-profit placement.
type TakeProfitOrderSpec struct {
	Level    int
	Price    string // Formatted price
	Quantity string // Formatted quantity for this rung
}

// OrderBookLevel is a single price level of the order book.
type OrderBookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a depth snapshot. Consumed read-only by the core.
type OrderBook struct {
	Bids []OrderBookLevel
	Asks []OrderBookLevel
}

// MarketDataClient is the read-only market data collaborator.
type MarketDataClient interface {
	// GetKlines retrieves historical klines/candlestick data for the given symbol.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// GetTickerPrice retrieves the last ticker price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetOrderBook retrieves a depth snapshot for a given symbol.
	GetOrderBook(ctx context.Context, symbol string, limit int) (*OrderBook, error)

	// GetFundingRate retrieves the current funding rate for a perpetual symbol.
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}

// ExchangeClient defines the interface for interacting with a cryptocurrency
// exchange. This abstraction decouples the decision engine from the concrete
// exchange implementation.
type ExchangeClient interface {
	MarketDataClient

	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetAccountBalance retrieves the available balance for a specific asset (e.g., "USDT").
	GetAccountBalance(ctx context.Context, asset string) (float64, error)

	// SetLeverage sets the leverage for a specific symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder places a market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a stop-market order.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfitLevels places the laddered take-profit orders for a position.
	// Returns one response per successfully placed rung, in ladder order.
	PlaceTakeProfitLevels(ctx context.Context, symbol string, side domain.OrderSide, levels []TakeProfitOrderSpec) ([]OrderResponse, error)

	// UpdateStopLoss replaces the stop order guarding the position with one at
	// the given price, cancelling the previous stop first.
	UpdateStopLoss(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string, prevOrderID *string) (*OrderResponse, error)

	// VerifyProtectionSet queries the open protective orders for a symbol.
	VerifyProtectionSet(ctx context.Context, symbol string, side domain.OrderSide) (*ProtectionState, error)

	// ClosePosition market-closes the given quantity of an open position.
	ClosePosition(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)

	// StreamKlines starts a WebSocket stream for K-line/candlestick data.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
