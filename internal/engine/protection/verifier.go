// Package protection places the protective orders guarding a new position and
// verifies their presence on the exchange with bounded retries. Exhausting the
// retries triggers the single highest-severity failure path in the system: an
// emergency close plus a critical alert. The bot never silently continues
// holding an unprotected position.
package protection

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"fusionbot/internal/domain"
	"fusionbot/internal/metrics"
	"fusionbot/internal/ports"
	"fusionbot/internal/risk"
)

// Config holds the verification parameters.
type Config struct {
	MaxVerificationRetries int     `yaml:"max_verification_retries"`
	VerificationWaitMs     int64   `yaml:"verification_wait_ms"`
	PricePrecision         int     `yaml:"price_precision"`
	QtyStep                float64 `yaml:"qty_step"`
}

// VerificationWait is the base delay between verification polls.
func (c Config) VerificationWait() time.Duration {
	return time.Duration(c.VerificationWaitMs) * time.Millisecond
}

// DefaultConfig returns the stock verification parameters.
func DefaultConfig() Config {
	return Config{
		MaxVerificationRetries: 3,
		VerificationWaitMs:     2000,
		PricePrecision:         2,
		QtyStep:                0.001,
	}
}

// Sleeper abstracts the inter-retry wait so tests can advance virtual time.
// The wait is cancellable only by process shutdown, not by business logic.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Result describes the protection placed for a position.
type Result struct {
	StopLossPrice      float64
	StopLossOrderID    *string
	TakeProfitOrderIDs []string
	Verified           bool
}

// Verifier implements the place-and-verify loop.
type Verifier struct {
	cfg      Config
	logger   ports.Logger
	exchange ports.ExchangeClient
	notifier ports.Notifier
	metrics  *metrics.Metrics
	sleeper  Sleeper
	symbol   string
}

// New creates a verifier. All collaborators are required.
func New(cfg Config, logger ports.Logger, exchange ports.ExchangeClient, notifier ports.Notifier, m *metrics.Metrics, symbol string) (*Verifier, error) {
	if logger == nil || exchange == nil || notifier == nil || m == nil {
		return nil, fmt.Errorf("%w: protection verifier", ports.ErrMissingCollaborator)
	}
	if cfg.MaxVerificationRetries <= 0 {
		cfg.MaxVerificationRetries = 3
	}
	if cfg.VerificationWaitMs <= 0 {
		cfg.VerificationWaitMs = 2000
	}
	return &Verifier{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		notifier: notifier,
		metrics:  m,
		sleeper:  realSleeper{},
		symbol:   symbol,
	}, nil
}

// WithSleeper swaps the wait implementation. Used by tests.
func (v *Verifier) WithSleeper(s Sleeper) *Verifier {
	v.sleeper = s
	return v
}

// SetAndVerifyProtection places the stop-loss and laddered take-profits for a
// freshly filled position and verifies the exchange accepted them.
//
// The stop distance is recomputed against the actual fill price, preserving
// the signal's percentage distance: a slipped fill must not silently widen or
// narrow the risk on the trade.
func (v *Verifier) SetAndVerifyProtection(ctx context.Context, sig *domain.Signal, side domain.Direction, qty, entryPrice, currentPrice float64) (*Result, error) {
	op := "SetAndVerifyProtection"

	stopPrice := stopFromFill(sig, side, entryPrice)
	res := &Result{StopLossPrice: stopPrice}
	closeSide := domain.CloseSide(side)

	qtyStr, err := risk.FormatToStep(qty, v.cfg.QtyStep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Initial placement. Failures here are retried by the verification loop,
	// which re-issues whichever order type is missing.
	if err := v.placeTakeProfits(ctx, sig, closeSide, qty, res); err != nil {
		v.logger.Error(ctx, err, op+": initial take-profit placement failed, verification loop will retry")
	}
	if err := v.placeStop(ctx, closeSide, qtyStr, stopPrice, res); err != nil {
		v.logger.Error(ctx, err, op+": initial stop-loss placement failed, verification loop will retry")
	}

	delay := &backoff.Backoff{
		Min:    v.cfg.VerificationWait(),
		Max:    v.cfg.VerificationWait() * 4,
		Factor: 1.5,
		Jitter: false,
	}

	for attempt := 1; attempt <= v.cfg.MaxVerificationRetries; attempt++ {
		if err := v.sleeper.Sleep(ctx, delay.Duration()); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}

		state, err := v.exchange.VerifyProtectionSet(ctx, v.symbol, closeSide)
		if err != nil {
			v.logger.Error(ctx, err, op+": verification poll failed", map[string]interface{}{"attempt": attempt})
			v.metrics.VerificationRetry.Inc()
			continue
		}

		if state.HasStopLoss && state.HasTakeProfit {
			res.Verified = true
			v.logger.Info(ctx, op+": protection verified", map[string]interface{}{
				"attempt": attempt, "activeOrders": state.ActiveOrders,
			})
			return res, nil
		}

		v.metrics.VerificationRetry.Inc()
		v.logger.Warn(ctx, op+": protection incomplete, re-issuing missing orders", map[string]interface{}{
			"attempt":       attempt,
			"hasStopLoss":   state.HasStopLoss,
			"hasTakeProfit": state.HasTakeProfit,
		})
		if !state.HasStopLoss {
			if err := v.placeStop(ctx, closeSide, qtyStr, stopPrice, res); err != nil {
				v.logger.Error(ctx, err, op+": stop-loss re-issue failed", map[string]interface{}{"attempt": attempt})
			}
		}
		if !state.HasTakeProfit {
			if err := v.placeTakeProfits(ctx, sig, closeSide, qty, res); err != nil {
				v.logger.Error(ctx, err, op+": take-profit re-issue failed", map[string]interface{}{"attempt": attempt})
			}
		}
	}

	// Retries exhausted: close the whole position rather than hold it bare.
	v.emergencyClose(ctx, closeSide, qtyStr)
	return res, fmt.Errorf("%s: %w after %d attempts", op, ports.ErrProtectionUnverified, v.cfg.MaxVerificationRetries)
}

// stopFromFill re-anchors the signal's stop distance at the actual fill price.
func stopFromFill(sig *domain.Signal, side domain.Direction, fillPrice float64) float64 {
	distPct := sig.StopDistancePercent()
	if side == domain.Short {
		return fillPrice * (1 + distPct)
	}
	return fillPrice * (1 - distPct)
}

func (v *Verifier) placeStop(ctx context.Context, closeSide domain.OrderSide, qtyStr string, stopPrice float64, res *Result) error {
	order, err := v.exchange.PlaceStopMarketOrder(ctx, v.symbol, closeSide, qtyStr, v.formatPrice(stopPrice))
	if err != nil {
		return err
	}
	id := strconv.FormatInt(order.OrderID, 10)
	res.StopLossOrderID = &id
	return nil
}

func (v *Verifier) placeTakeProfits(ctx context.Context, sig *domain.Signal, closeSide domain.OrderSide, qty float64, res *Result) error {
	specs := make([]ports.TakeProfitOrderSpec, 0, len(sig.TakeProfits))
	for _, tp := range sig.TakeProfits {
		rungQty, err := risk.FormatToStep(qty*tp.SizePercent/100, v.cfg.QtyStep)
		if err != nil {
			return err
		}
		specs = append(specs, ports.TakeProfitOrderSpec{
			Level:    tp.Level,
			Price:    v.formatPrice(tp.Price),
			Quantity: rungQty,
		})
	}
	if len(specs) == 0 {
		return nil
	}
	orders, err := v.exchange.PlaceTakeProfitLevels(ctx, v.symbol, closeSide, specs)
	if err != nil {
		return err
	}
	res.TakeProfitOrderIDs = res.TakeProfitOrderIDs[:0]
	for _, o := range orders {
		res.TakeProfitOrderIDs = append(res.TakeProfitOrderIDs, strconv.FormatInt(o.OrderID, 10))
	}
	return nil
}

// emergencyClose market-closes the entire position and raises the critical
// alert. Called exactly once per failed verification sequence.
func (v *Verifier) emergencyClose(ctx context.Context, closeSide domain.OrderSide, qtyStr string) {
	alertID := uuid.NewString()
	v.metrics.EmergencyCloses.Inc()
	v.logger.Error(ctx, ports.ErrProtectionUnverified, "EMERGENCY CLOSE: protection unverified, closing position", map[string]interface{}{
		"symbol": v.symbol, "quantity": qtyStr, "alertID": alertID,
	})
	if _, err := v.exchange.ClosePosition(ctx, v.symbol, closeSide, qtyStr); err != nil {
		// The worst state in the system: an unprotected position we failed to
		// close. The alert below is the operator's signal to intervene.
		v.logger.Error(ctx, err, "EMERGENCY CLOSE FAILED, manual intervention required", map[string]interface{}{
			"symbol": v.symbol, "alertID": alertID,
		})
	}
	v.notifier.CriticalAlert(ctx, "position unprotected",
		fmt.Sprintf("alert %s: protection for %s could not be verified after %d attempts; emergency close issued",
			alertID, v.symbol, v.cfg.MaxVerificationRetries))
}

func (v *Verifier) formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', v.cfg.PricePrecision, 64)
}
