package indicators

import (
	"fmt"

	"fusionbot/internal/domain"
)

// RSI computes the Relative Strength Index over closing prices using Wilder's
// smoothing. A series with no losses reads 100, a completely flat series 50.
func RSI(klines []*domain.Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi period must be positive, got %d", period)
	}
	if len(klines) <= period {
		return 0, fmt.Errorf("rsi needs more than %d candles, got %d", period, len(klines))
	}

	var avgGain, avgLoss float64
	prev := klines[0].Close
	for i := 1; i <= period; i++ {
		change := klines[i].Close - prev
		prev = klines[i].Close
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(klines); i++ {
		change := klines[i].Close - klines[i-1].Close
		if change > 0 {
			avgGain = (avgGain*(p-1) + change) / p
			avgLoss = avgLoss * (p - 1) / p
		} else {
			avgGain = avgGain * (p - 1) / p
			avgLoss = (avgLoss*(p-1) - change) / p
		}
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, nil
		}
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
