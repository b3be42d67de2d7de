package indicators

import (
	"fmt"
	"math"

	"fusionbot/internal/domain"
)

// ATR computes the Average True Range with Wilder's smoothing: the first
// period true ranges seed a simple average, every later candle folds in with
// weight 1/period.
func ATR(klines []*domain.Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr period must be positive, got %d", period)
	}
	if len(klines) < period+1 {
		return 0, fmt.Errorf("atr needs at least %d candles, got %d", period+1, len(klines))
	}

	var atr float64
	prevClose := 0.0
	for i, k := range klines {
		tr := k.High - k.Low
		if i > 0 {
			tr = math.Max(tr, math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
		}
		prevClose = k.Close

		switch {
		case i < period:
			atr += tr
			if i == period-1 {
				atr /= float64(period)
			}
		default:
			atr = (atr*float64(period-1) + tr) / float64(period)
		}
	}
	return atr, nil
}
