package alignment

import (
	"context"

	"fusionbot/internal/domain"
	"fusionbot/internal/ports"
)

// IndicatorProvider fetches the EMA/structure readings for one timeframe role.
// Implementations typically compute EMAs over independently fetched candles.
type IndicatorProvider interface {
	TimeframeIndicators(ctx context.Context, role domain.TimeframeRole) (domain.TimeframeIndicators, error)
}

// Confirmation is the result of the cross-timeframe trend-confirmation step.
type Confirmation struct {
	IsAligned bool
	Score     float64 // Weighted average confirmation in [0,1]
	Details   map[domain.TimeframeRole]bool
}

// ConfirmTrend computes a weighted average confirmation from independently
// fetched higher-timeframe data. When the fetch fails for every timeframe the
// result is IsAligned=false: inability to read data must never create a false
// confirmation. This is the deliberate inverse of the scorer's fail-open
// behavior for disabled features.
func (g *Gate) ConfirmTrend(ctx context.Context, logger ports.Logger, provider IndicatorProvider, direction domain.Direction) Confirmation {
	weights := map[domain.TimeframeRole]float64{
		domain.RolePrimary: g.cfg.ConfirmPrimaryWeight,
		domain.RoleTrend1:  g.cfg.ConfirmTrend1Weight,
		domain.RoleTrend2:  g.cfg.ConfirmTrend2Weight,
	}

	conf := Confirmation{Details: make(map[domain.TimeframeRole]bool, len(weights))}
	var weightedSum, weightAvailable float64

	for role, weight := range weights {
		ind, err := provider.TimeframeIndicators(ctx, role)
		if err != nil || !ind.HasData {
			if err != nil {
				logger.Warn(ctx, "trend confirmation: timeframe data unavailable", map[string]interface{}{
					"role": string(role), "error": err.Error(),
				})
			}
			continue
		}
		weightAvailable += weight
		agrees := emaSupports(direction, ind) && priceSupports(direction, ind.Close, ind)
		conf.Details[role] = agrees
		if agrees {
			weightedSum += weight
		}
	}

	if weightAvailable == 0 {
		// Total data loss: fail closed.
		return Confirmation{IsAligned: false, Details: conf.Details}
	}

	conf.Score = weightedSum / weightAvailable
	conf.IsAligned = conf.Score >= g.cfg.MinConfirmation
	return conf
}
