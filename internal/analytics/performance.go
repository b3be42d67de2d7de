// Package analytics summarizes closed-trade performance for reporting.
package analytics

import (
	"sort"
	"time"

	"fusionbot/internal/domain"
)

// Summary aggregates the outcome of a set of closed trades.
type Summary struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // fraction of trades with positive PNL
	TotalPNL    float64
	AverageWin  float64
	AverageLoss float64
	// ProfitFactor is gross profit over gross loss; 0 when there are no losses.
	ProfitFactor float64

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageDuration      time.Duration

	// Trade counts keyed by why the position closed.
	ByCloseReason map[domain.CloseReason]int
}

// Summarize computes a Summary over the given trades. The input slice is not
// modified; trades are processed in entry-time order.
func Summarize(trades []*domain.Trade) *Summary {
	s := &Summary{ByCloseReason: make(map[domain.CloseReason]int)}
	if len(trades) == 0 {
		return s
	}

	ordered := append([]*domain.Trade(nil), trades...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].EntryTime.Before(ordered[j].EntryTime)
	})

	var grossProfit, grossLoss float64
	var totalDuration time.Duration
	var runWins, runLosses int

	for _, trade := range ordered {
		s.TotalTrades++
		s.TotalPNL += trade.PNL
		s.ByCloseReason[trade.CloseReason]++
		totalDuration += trade.ExitTime.Sub(trade.EntryTime)

		if trade.PNL > 0 {
			s.Wins++
			grossProfit += trade.PNL
			runWins++
			runLosses = 0
			s.AverageWin = (s.AverageWin*float64(s.Wins-1) + trade.PNL) / float64(s.Wins)
		} else {
			s.Losses++
			grossLoss -= trade.PNL
			runLosses++
			runWins = 0
			s.AverageLoss = (s.AverageLoss*float64(s.Losses-1) + trade.PNL) / float64(s.Losses)
		}
		if runWins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = runWins
		}
		if runLosses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = runLosses
		}
	}

	s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	s.AverageDuration = totalDuration / time.Duration(s.TotalTrades)
	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	}
	return s
}
