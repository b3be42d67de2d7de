package indicators

import (
	"math"

	"fusionbot/internal/domain"
	"fusionbot/internal/ports"
)

// SnapshotConfig holds the periods used to build an indicator snapshot.
type SnapshotConfig struct {
	RSIPeriod      int
	EMAFastPeriod  int
	EMASlowPeriod  int
	ATRPeriod      int
	VolumeLookback int
	SweepLookback  int // candles scanned for liquidity sweeps
	BookDepth      int // order-book levels aggregated for imbalance
}

// DefaultSnapshotConfig returns the stock snapshot periods.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		RSIPeriod:      14,
		EMAFastPeriod:  9,
		EMASlowPeriod:  21,
		ATRPeriod:      14,
		VolumeLookback: 20,
		SweepLookback:  10,
		BookDepth:      10,
	}
}

// SnapshotBuilder derives a domain.IndicatorSnapshot from candles and an
// optional order-book snapshot. Readings that cannot be computed from the
// available data are left nil; insufficient data is a local condition here,
// never an error.
type SnapshotBuilder struct {
	cfg SnapshotConfig
}

// NewSnapshotBuilder creates a snapshot builder.
func NewSnapshotBuilder(cfg SnapshotConfig) *SnapshotBuilder {
	return &SnapshotBuilder{cfg: cfg}
}

// Build computes all available readings. The order book may be nil.
func (b *SnapshotBuilder) Build(klines []*domain.Kline, book *ports.OrderBook) *domain.IndicatorSnapshot {
	snap := &domain.IndicatorSnapshot{}

	if v, err := RSI(klines, b.cfg.RSIPeriod); err == nil {
		snap.RSI = &domain.FactorReading{Value: v}
	}
	if v, err := EMA(klines, b.cfg.EMAFastPeriod); err == nil {
		snap.EMAFast = &domain.FactorReading{Value: v}
	}
	if v, err := EMA(klines, b.cfg.EMASlowPeriod); err == nil {
		snap.EMASlow = &domain.FactorReading{Value: v}
	}
	if v, err := ATR(klines, b.cfg.ATRPeriod); err == nil {
		snap.ATR = &domain.FactorReading{Value: v}
	}
	if ratio, ok := volumeRatio(klines, b.cfg.VolumeLookback); ok {
		// Stored as excess over average so 0 means average volume.
		snap.Volume = &domain.FactorReading{Value: ratio - 1}
	}
	if delta, ok := volumeDelta(klines, b.cfg.VolumeLookback); ok {
		snap.Delta = &domain.FactorReading{Value: delta}
	}
	if book != nil {
		if imb, ok := bookImbalance(book, b.cfg.BookDepth); ok {
			snap.Imbalance = &domain.FactorReading{Value: imb}
		}
	}
	if div, ok := b.divergence(klines); ok {
		snap.Divergence = &domain.FactorReading{Value: div}
	}
	if rev, ok := reversalStrength(klines); ok {
		snap.ReversalStrength = &domain.FactorReading{Value: rev}
	}
	if sweep, ok := liquiditySweep(klines, b.cfg.SweepLookback); ok {
		snap.LiquiditySweep = &domain.FactorReading{Value: sweep}
	}

	return snap
}

// BookDepth returns the configured number of order-book levels to aggregate.
func (b *SnapshotBuilder) BookDepth() int {
	return b.cfg.BookDepth
}

// VolumeLookback returns the configured volume averaging window.
func (b *SnapshotBuilder) VolumeLookback() int {
	return b.cfg.VolumeLookback
}

// TimeframeIndicators computes the alignment-gate readings for one candle series.
func (b *SnapshotBuilder) TimeframeIndicators(role domain.TimeframeRole, klines []*domain.Kline) domain.TimeframeIndicators {
	out := domain.TimeframeIndicators{Role: role}
	fast, errFast := EMA(klines, b.cfg.EMAFastPeriod)
	slow, errSlow := EMA(klines, b.cfg.EMASlowPeriod)
	if errFast != nil || errSlow != nil || len(klines) == 0 {
		return out
	}
	out.EMAFast = fast
	out.EMASlow = slow
	out.Close = klines[len(klines)-1].Close
	out.HasData = true
	return out
}

// AverageVolume returns the mean volume over the lookback, excluding the
// latest candle.
func AverageVolume(klines []*domain.Kline, lookback int) (float64, bool) {
	if len(klines) < lookback+1 {
		return 0, false
	}
	window := klines[len(klines)-lookback-1 : len(klines)-1]
	var sum float64
	for _, k := range window {
		sum += k.Volume
	}
	return sum / float64(len(window)), true
}

// DetectFlatMarket flags a ranging market: total high-low spread over the
// lookback small relative to price.
func DetectFlatMarket(klines []*domain.Kline, lookback int, maxRangePercent float64) *ports.FlatMarketResult {
	if len(klines) < lookback {
		return nil
	}
	window := klines[len(klines)-lookback:]
	low, high := window[0].Low, window[0].High
	for _, k := range window[1:] {
		if k.Low < low {
			low = k.Low
		}
		if k.High > high {
			high = k.High
		}
	}
	if low <= 0 {
		return nil
	}
	rangePct := (high - low) / low * 100
	res := &ports.FlatMarketResult{}
	if rangePct < maxRangePercent {
		res.IsFlat = true
		res.Strength = 1 - rangePct/maxRangePercent
	}
	return res
}

func volumeRatio(klines []*domain.Kline, lookback int) (float64, bool) {
	avg, ok := AverageVolume(klines, lookback)
	if !ok || avg == 0 {
		return 0, false
	}
	return klines[len(klines)-1].Volume / avg, true
}

// volumeDelta approximates the buy/sell volume balance from candle bodies:
// volume on up-closes counts as buying, down-closes as selling.
func volumeDelta(klines []*domain.Kline, lookback int) (float64, bool) {
	if len(klines) < lookback {
		return 0, false
	}
	window := klines[len(klines)-lookback:]
	var signed, total float64
	for _, k := range window {
		total += k.Volume
		if k.IsBullish() {
			signed += k.Volume
		} else if k.IsBearish() {
			signed -= k.Volume
		}
	}
	if total == 0 {
		return 0, false
	}
	return signed / total, true
}

// bookImbalance aggregates the top depth levels into a signed ratio in [-1,1];
// positive means bid-heavy.
func bookImbalance(book *ports.OrderBook, depth int) (float64, bool) {
	var bidQty, askQty float64
	for i, lvl := range book.Bids {
		if i >= depth {
			break
		}
		bidQty += lvl.Quantity
	}
	for i, lvl := range book.Asks {
		if i >= depth {
			break
		}
		askQty += lvl.Quantity
	}
	if bidQty+askQty == 0 {
		return 0, false
	}
	return (bidQty - askQty) / (bidQty + askQty), true
}

// divergence compares the price slope against the RSI slope over the RSI
// period: price falling while RSI rises is bullish divergence (positive),
// the mirror case bearish (negative).
func (b *SnapshotBuilder) divergence(klines []*domain.Kline) (float64, bool) {
	need := b.cfg.RSIPeriod * 2
	if len(klines) <= need {
		return 0, false
	}
	half := klines[:len(klines)-b.cfg.RSIPeriod]
	rsiThen, errThen := RSI(half, b.cfg.RSIPeriod)
	rsiNow, errNow := RSI(klines, b.cfg.RSIPeriod)
	if errThen != nil || errNow != nil {
		return 0, false
	}
	priceThen := half[len(half)-1].Close
	priceNow := klines[len(klines)-1].Close
	if priceThen == 0 {
		return 0, false
	}
	priceSlope := (priceNow - priceThen) / priceThen
	rsiSlope := (rsiNow - rsiThen) / 100

	// Opposite slopes mean divergence; scale by their combined magnitude.
	if priceSlope*rsiSlope >= 0 {
		return 0, true
	}
	strength := math.Min(1, math.Abs(priceSlope)*20+math.Abs(rsiSlope))
	if rsiSlope > 0 {
		return strength, true // bullish
	}
	return -strength, true // bearish
}

// reversalStrength measures wick rejection on the latest candle: a long lower
// wick after a down move or a long upper wick after an up move.
func reversalStrength(klines []*domain.Kline) (float64, bool) {
	if len(klines) == 0 {
		return 0, false
	}
	k := klines[len(klines)-1]
	r := k.Range()
	if r == 0 {
		return 0, false
	}
	body := math.Abs(k.Close - k.Open)
	lowerWick := math.Min(k.Open, k.Close) - k.Low
	upperWick := k.High - math.Max(k.Open, k.Close)
	wick := math.Max(lowerWick, upperWick)
	if wick <= body {
		return 0, true
	}
	return wick / r, true
}

// liquiditySweep detects a brief breach of the prior lookback low or high
// followed by a close back inside the range.
func liquiditySweep(klines []*domain.Kline, lookback int) (float64, bool) {
	if len(klines) < lookback+1 {
		return 0, false
	}
	prior := klines[len(klines)-lookback-1 : len(klines)-1]
	low, high := prior[0].Low, prior[0].High
	for _, k := range prior[1:] {
		if k.Low < low {
			low = k.Low
		}
		if k.High > high {
			high = k.High
		}
	}
	last := klines[len(klines)-1]
	r := high - low
	if r == 0 {
		return 0, true
	}
	// Swept the lows and recovered.
	if last.Low < low && last.Close > low {
		return math.Min(1, (low-last.Low)/r*10), true
	}
	// Swept the highs and rejected.
	if last.High > high && last.Close < high {
		return math.Min(1, (last.High-high)/r*10), true
	}
	return 0, true
}
