package entry

import (
	"context"
	"fmt"
	"math"

	"fusionbot/internal/domain"
	"fusionbot/internal/ports"
)

// SoftFilter is a non-critical entry filter. A filter error never blocks the
// trade: blocking on infrastructure failure is worse than occasionally
// trading through it.
type SoftFilter interface {
	Name() string
	Allow(ctx context.Context, direction domain.Direction) (bool, string, error)
}

// FundingRateFilter blocks entries that would pay an extreme funding rate in
// the trade's direction.
type FundingRateFilter struct {
	Market     ports.MarketDataClient
	Symbol     string
	MaxAbsRate float64 // e.g. 0.0003 (0.03% per interval)
}

func (f *FundingRateFilter) Name() string { return "fundingRate" }

// Allow checks the current funding rate. LONGs pay positive funding, SHORTs
// pay negative, so only the adverse sign blocks.
func (f *FundingRateFilter) Allow(ctx context.Context, direction domain.Direction) (bool, string, error) {
	rate, err := f.Market.GetFundingRate(ctx, f.Symbol)
	if err != nil {
		return true, "", err
	}
	if math.Abs(rate) <= f.MaxAbsRate {
		return true, "", nil
	}
	if (direction == domain.Long && rate > 0) || (direction == domain.Short && rate < 0) {
		return false, fmt.Sprintf("funding rate %.5f adverse for %s", rate, direction), nil
	}
	return true, "", nil
}

// BTCCorrelationFilter blocks alt entries that fight a strong opposing move
// in BTC, which drags most of the market with it.
type BTCCorrelationFilter struct {
	Market       ports.MarketDataClient
	BTCSymbol    string // usually "BTCUSDT"
	Interval     string
	Lookback     int     // candles inspected
	MaxAdversePC float64 // adverse BTC move percent that blocks, e.g. 1.5
}

func (f *BTCCorrelationFilter) Name() string { return "btcCorrelation" }

func (f *BTCCorrelationFilter) Allow(ctx context.Context, direction domain.Direction) (bool, string, error) {
	klines, err := f.Market.GetKlines(ctx, f.BTCSymbol, f.Interval, f.Lookback)
	if err != nil {
		return true, "", err
	}
	if len(klines) < 2 {
		return true, "", nil
	}
	first, last := klines[0], klines[len(klines)-1]
	if first.Open == 0 {
		return true, "", nil
	}
	movePct := (last.Close - first.Open) / first.Open * 100
	if direction == domain.Long && movePct <= -f.MaxAdversePC {
		return false, fmt.Sprintf("BTC down %.2f%% over lookback", -movePct), nil
	}
	if direction == domain.Short && movePct >= f.MaxAdversePC {
		return false, fmt.Sprintf("BTC up %.2f%% over lookback", movePct), nil
	}
	return true, "", nil
}
