package ports

import (
	"context"

	"fusionbot/internal/domain"
)

// RiskVerdict is the outcome of a risk evaluation.
type RiskVerdict string

const (
	RiskEnter RiskVerdict = "ENTER"
	RiskBlock RiskVerdict = "BLOCK"
)

// RiskDecision is the sizing/exposure answer returned by the risk collaborator.
type RiskDecision struct {
	Decision             RiskVerdict
	AdjustedPositionSize float64 // Final quantity to trade; valid only when Decision is ENTER
	Reason               string
}

// FlatMarketResult captures a flat/ranging market assessment handed to the
// risk collaborator alongside the signal.
type FlatMarketResult struct {
	IsFlat   bool
	Strength float64 // How pronounced the range is, in [0,1]
}

// RiskAdvisor is the risk/sizing collaborator consulted before every entry.
type RiskAdvisor interface {
	// CanTrade decides whether the signal may be executed and at what size.
	CanTrade(ctx context.Context, signal *domain.Signal, balance float64, openPositions int, trend *domain.TrendContext, flat *FlatMarketResult) (*RiskDecision, error)
}
