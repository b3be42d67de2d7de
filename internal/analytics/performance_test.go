package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fusionbot/internal/domain"
)

func trade(entry time.Time, hold time.Duration, pnl float64, reason domain.CloseReason) *domain.Trade {
	return &domain.Trade{
		Symbol:      "ETHUSDT",
		PNL:         pnl,
		EntryTime:   entry,
		ExitTime:    entry.Add(hold),
		CloseReason: reason,
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty input", func(t *testing.T) {
		s := Summarize(nil)
		assert.Zero(t, s.TotalTrades)
		assert.Zero(t, s.WinRate)
		assert.Empty(t, s.ByCloseReason)
	})

	t.Run("mixed outcomes", func(t *testing.T) {
		trades := []*domain.Trade{
			trade(base, time.Hour, 50, domain.CloseReasonTakeProfit),
			trade(base.Add(2*time.Hour), time.Hour, 30, domain.CloseReasonTakeProfit),
			trade(base.Add(4*time.Hour), 2*time.Hour, -40, domain.CloseReasonStopLoss),
			trade(base.Add(8*time.Hour), 2*time.Hour, 20, domain.CloseReasonTakeProfit),
		}

		s := Summarize(trades)
		assert.Equal(t, 4, s.TotalTrades)
		assert.Equal(t, 3, s.Wins)
		assert.Equal(t, 1, s.Losses)
		assert.InDelta(t, 0.75, s.WinRate, 1e-9)
		assert.InDelta(t, 60.0, s.TotalPNL, 1e-9)
		assert.InDelta(t, 100.0/3.0, s.AverageWin, 1e-9)
		assert.InDelta(t, -40.0, s.AverageLoss, 1e-9)
		assert.InDelta(t, 2.5, s.ProfitFactor, 1e-9) // 100 gross profit / 40 gross loss
		assert.Equal(t, 2, s.MaxConsecutiveWins)
		assert.Equal(t, 1, s.MaxConsecutiveLosses)
		assert.Equal(t, 90*time.Minute, s.AverageDuration)
		assert.Equal(t, 3, s.ByCloseReason[domain.CloseReasonTakeProfit])
		assert.Equal(t, 1, s.ByCloseReason[domain.CloseReasonStopLoss])
	})

	t.Run("orders by entry time before counting streaks", func(t *testing.T) {
		// Given unordered, the two wins are adjacent once sorted.
		trades := []*domain.Trade{
			trade(base.Add(3*time.Hour), time.Hour, 10, domain.CloseReasonTakeProfit),
			trade(base, time.Hour, -5, domain.CloseReasonStopLoss),
			trade(base.Add(time.Hour), time.Hour, 10, domain.CloseReasonTakeProfit),
		}
		s := Summarize(trades)
		assert.Equal(t, 2, s.MaxConsecutiveWins)
		// Input slice order is untouched.
		assert.Equal(t, 10.0, trades[0].PNL)
		assert.Equal(t, base.Add(3*time.Hour), trades[0].EntryTime)
	})

	t.Run("all wins has zero profit factor denominator", func(t *testing.T) {
		trades := []*domain.Trade{
			trade(base, time.Hour, 10, domain.CloseReasonTakeProfit),
		}
		s := Summarize(trades)
		assert.Zero(t, s.ProfitFactor)
		assert.Equal(t, 1.0, s.WinRate)
	})
}
