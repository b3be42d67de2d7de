// Package entry implements the single atomic entry decision point: the
// ordered gate combining kill-switch, risk sizing, retest deferral, and the
// soft market filters.
package entry

import (
	"context"
	"fmt"
	"time"

	"fusionbot/internal/domain"
	"fusionbot/internal/metrics"
	"fusionbot/internal/ports"
	"fusionbot/internal/signal/retest"
)

// Verdict is the outcome kind of an entry evaluation.
type Verdict int

const (
	VerdictBlock Verdict = iota
	VerdictEnter
	VerdictDefer
)

// Decision is the result of one atomic entry evaluation.
type Decision struct {
	Verdict  Verdict
	Quantity float64 // Risk-adjusted size; valid only for VerdictEnter
	Stage    string  // Pipeline stage that blocked or deferred
	Reason   string
}

// Input carries everything one evaluation needs. The orchestrator holds no
// market state of its own.
type Input struct {
	Signal        *domain.Signal
	Balance       float64
	OpenPositions int
	Trend         *domain.TrendContext
	Flat          *ports.FlatMarketResult
	Candles       []*domain.Kline // Recent entry-timeframe candles, oldest first
	CurrentVolume float64
	AvgVolume     float64
	Now           time.Time

	// FromRetest marks a signal resurrected by a satisfied retest zone. The
	// retracement into the zone looks like a fresh impulse, so the impulse
	// check is skipped or the signal would defer forever.
	FromRetest bool
}

// Orchestrator is the atomic entry gate. All collaborators are required at
// construction; a missing one is a programming-contract violation, not a
// trading condition.
type Orchestrator struct {
	logger     ports.Logger
	killSwitch *KillSwitch
	risk       ports.RiskAdvisor
	retest     *retest.Gate
	filters    []SoftFilter
	metrics    *metrics.Metrics
	symbol     string
}

// New creates the orchestrator. Soft filters are optional; everything else
// must be present.
func New(logger ports.Logger, killSwitch *KillSwitch, risk ports.RiskAdvisor, retestGate *retest.Gate, m *metrics.Metrics, symbol string, filters ...SoftFilter) (*Orchestrator, error) {
	if logger == nil || killSwitch == nil || risk == nil || retestGate == nil || m == nil {
		return nil, fmt.Errorf("%w: entry orchestrator", ports.ErrMissingCollaborator)
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: entry orchestrator requires a symbol", ports.ErrMissingCollaborator)
	}
	return &Orchestrator{
		logger:     logger,
		killSwitch: killSwitch,
		risk:       risk,
		retest:     retestGate,
		filters:    filters,
		metrics:    m,
		symbol:     symbol,
	}, nil
}

// Evaluate runs the ordered checks and short-circuits on the first block.
// The kill-switch is checked before anything that could touch the network.
func (o *Orchestrator) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	// 1. Kill-switch: fatal for this cycle, not for the process.
	if o.killSwitch.Engaged() {
		return o.block(ctx, "killSwitch", "kill-switch marker present"), nil
	}

	// 2. Risk manager: sizing and exposure.
	riskDecision, err := o.risk.CanTrade(ctx, in.Signal, in.Balance, in.OpenPositions, in.Trend, in.Flat)
	if err != nil {
		return nil, fmt.Errorf("risk evaluation: %w", err)
	}
	if riskDecision.Decision != ports.RiskEnter {
		return o.block(ctx, "risk", riskDecision.Reason), nil
	}

	// 3. Missed impulse: defer to a retest zone instead of chasing. Never
	// re-deferred for signals a retest zone already resurrected.
	if impulse, movePct := o.retest.DetectImpulse(in.Candles); impulse && !in.FromRetest {
		zone, zerr := o.retest.CreateZone(o.symbol, in.Signal, in.Candles, in.Now)
		if zerr != nil {
			o.logger.Warn(ctx, "impulse detected but zone creation failed, entering anyway", map[string]interface{}{"error": zerr.Error()})
		} else {
			o.metrics.SignalsDeferred.Inc()
			o.logger.Info(ctx, "impulse detected, signal deferred to retest zone", map[string]interface{}{
				"movePercent": movePct,
				"zoneLow":     zone.ZoneLow,
				"zoneHigh":    zone.ZoneHigh,
				"expiresAt":   zone.ExpiresAt,
			})
			return &Decision{Verdict: VerdictDefer, Stage: "retest", Reason: fmt.Sprintf("impulse %.2f%% missed, awaiting retracement", movePct)}, nil
		}
	}

	// 4. Soft filters: fail open on infrastructure errors.
	for _, filter := range o.filters {
		allowed, reason, ferr := filter.Allow(ctx, in.Signal.Direction)
		if ferr != nil {
			o.logger.Error(ctx, ferr, "soft filter failed, allowing entry", map[string]interface{}{"filter": filter.Name()})
			continue
		}
		if !allowed {
			return o.block(ctx, filter.Name(), reason), nil
		}
	}

	return &Decision{Verdict: VerdictEnter, Quantity: riskDecision.AdjustedPositionSize}, nil
}

func (o *Orchestrator) block(ctx context.Context, stage, reason string) *Decision {
	o.metrics.EntriesBlocked.WithLabelValues(stage).Inc()
	o.logger.Info(ctx, "entry blocked", map[string]interface{}{"stage": stage, "reason": reason})
	return &Decision{Verdict: VerdictBlock, Stage: stage, Reason: reason}
}
