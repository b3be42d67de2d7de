package indicators

import (
	"fmt"

	"fusionbot/internal/domain"
)

// SMA computes the simple moving average of the last period closes.
func SMA(klines []*domain.Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("sma period must be positive, got %d", period)
	}
	if len(klines) < period {
		return 0, fmt.Errorf("sma needs at least %d candles, got %d", period, len(klines))
	}
	var sum float64
	for _, k := range klines[len(klines)-period:] {
		sum += k.Close
	}
	return sum / float64(period), nil
}

// EMA computes the exponential moving average of closes, seeded with the SMA
// of the first period candles.
func EMA(klines []*domain.Kline, period int) (float64, error) {
	if len(klines) < period {
		return 0, fmt.Errorf("ema needs at least %d candles, got %d", period, len(klines))
	}
	seed, err := SMA(klines[:period], period)
	if err != nil {
		return 0, err
	}
	multiplier := 2.0 / float64(period+1)
	ema := seed
	for _, k := range klines[period:] {
		ema += (k.Close - ema) * multiplier
	}
	return ema, nil
}
