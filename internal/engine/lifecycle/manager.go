// Package lifecycle owns the single current-position slot. It creates,
// protects, mutates, and destroys Position objects, coordinating the
// protection verifier and the exit state machine. All calls arrive from the
// one dispatcher goroutine; there is exactly one writer.
package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fusionbot/internal/domain"
	"fusionbot/internal/engine/exits"
	"fusionbot/internal/engine/protection"
	"fusionbot/internal/metrics"
	"fusionbot/internal/ports"
	"fusionbot/internal/risk"
)

const postEntryValidationDelay = 60 * time.Second

// StatsRecorder receives open/close events for running risk statistics.
type StatsRecorder interface {
	UpdateOnOpen(ctx context.Context, pos *domain.Position)
	UpdateOnClose(ctx context.Context, trade *domain.Trade, balance float64)
}

// Config holds lifecycle parameters.
type Config struct {
	Symbol         string
	Leverage       int
	QtyStep        float64
	MaxOpen        int // concurrent position limit, default 1
	PricePrecision int
}

// Manager is the position lifecycle coordinator.
type Manager struct {
	cfg       Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository
	notifier  ports.Notifier
	verifier  *protection.Verifier
	machine   *exits.Machine
	stats     StatsRecorder
	metrics   *metrics.Metrics

	current   *domain.Position
	exitState exits.State
}

// NewManager creates the lifecycle manager. Every collaborator is required.
func NewManager(cfg Config, logger ports.Logger, exchange ports.ExchangeClient, posRepo ports.PositionRepository, tradeRepo ports.TradeRepository, notifier ports.Notifier, verifier *protection.Verifier, machine *exits.Machine, stats StatsRecorder, m *metrics.Metrics) (*Manager, error) {
	if logger == nil || exchange == nil || posRepo == nil || tradeRepo == nil || notifier == nil || verifier == nil || machine == nil || stats == nil || m == nil {
		return nil, fmt.Errorf("%w: lifecycle manager", ports.ErrMissingCollaborator)
	}
	if cfg.MaxOpen <= 0 {
		cfg.MaxOpen = 1
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		exchange:  exchange,
		posRepo:   posRepo,
		tradeRepo: tradeRepo,
		notifier:  notifier,
		verifier:  verifier,
		machine:   machine,
		stats:     stats,
		metrics:   m,
	}, nil
}

// Current returns the open position, nil when flat.
func (m *Manager) Current() *domain.Position {
	return m.current
}

// OpenCount returns how many positions are currently open (0 or 1).
func (m *Manager) OpenCount() int {
	if m.current != nil {
		return 1
	}
	return 0
}

// Restore adopts a position found open in the repository at startup.
func (m *Manager) Restore(pos *domain.Position) {
	m.current = pos
	m.exitState = exits.StateProtected
}

// Open enters a position for an approved signal: market entry, protection
// placement/verification, state attachment, persistence, notification.
func (m *Manager) Open(ctx context.Context, sig *domain.Signal, qty, referencePrice float64) error {
	op := "Open"
	if m.current != nil {
		return fmt.Errorf("%w: position %d already open", ports.ErrPositionLimitReached, m.current.ID)
	}

	qtyStr, err := risk.FormatToStep(qty, m.cfg.QtyStep)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	entrySide := domain.EntrySide(sig.Direction)
	order, err := m.exchange.PlaceMarketOrder(ctx, m.cfg.Symbol, entrySide, qtyStr)
	if err != nil {
		return fmt.Errorf("%s: entry market order: %w", op, err)
	}
	fillPrice := order.AvgPrice
	if fillPrice == 0 {
		m.logger.Warn(ctx, op+": entry order AvgPrice is 0, falling back to reference price", map[string]interface{}{
			"orderID": order.OrderID, "fallback": referencePrice,
		})
		fillPrice = referencePrice
	}

	pos := &domain.Position{
		Symbol:      m.cfg.Symbol,
		Side:        sig.Direction,
		EntryPrice:  fillPrice,
		Quantity:    qty,
		Remaining:   qty,
		Leverage:    m.cfg.Leverage,
		TakeProfits: append([]domain.TakeProfitLevel(nil), sig.TakeProfits...),
		EntryTime:   time.Now().UTC(),
		Status:      domain.StatusOpen,
	}

	m.exitState = exits.StateUnprotected
	protRes, protErr := m.verifier.SetAndVerifyProtection(ctx, sig, sig.Direction, qty, fillPrice, referencePrice)
	pos.StopLoss = domain.StopLossState{
		Price:        protRes.StopLossPrice,
		InitialPrice: protRes.StopLossPrice,
		OrderID:      protRes.StopLossOrderID,
	}
	if protErr != nil {
		// The verifier already emergency-closed the exposure and alerted.
		// Record the aborted position for the audit trail and stay flat.
		pos.Status = domain.StatusClosed
		pos.ExitTime = time.Now().UTC()
		pos.ExitPrice = referencePrice
		pos.CloseReason = domain.CloseReasonEmergency
		if _, dbErr := m.posRepo.Create(ctx, pos); dbErr != nil {
			m.logger.Error(ctx, dbErr, op+": failed to record emergency-closed position")
		}
		return fmt.Errorf("%s: %w", op, protErr)
	}
	m.exitState = exits.StateProtected

	id, err := m.posRepo.Create(ctx, pos)
	if err != nil {
		m.logger.Error(ctx, err, op+": failed to persist position, keeping it in memory", map[string]interface{}{"symbol": pos.Symbol})
	} else {
		pos.ID = id
	}

	m.current = pos
	m.stats.UpdateOnOpen(ctx, pos)
	m.metrics.EntriesOpened.Inc()
	m.notifier.TradeOpened(ctx, pos)
	m.logger.Info(ctx, op+": position opened", map[string]interface{}{
		"positionID": pos.ID, "side": pos.Side, "entryPrice": pos.EntryPrice,
		"quantity": pos.Quantity, "stopLoss": pos.StopLoss.Price,
	})

	go m.postEntryValidation(ctx, pos.ID, sig.Direction)
	return nil
}

// postEntryValidation fires once shortly after entry and only observes: it
// logs the exchange-side protection state and never mutates the position.
func (m *Manager) postEntryValidation(ctx context.Context, positionID int64, direction domain.Direction) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(postEntryValidationDelay):
	}
	state, err := m.exchange.VerifyProtectionSet(ctx, m.cfg.Symbol, domain.CloseSide(direction))
	if err != nil {
		m.logger.Warn(ctx, "post-entry validation poll failed", map[string]interface{}{
			"positionID": positionID, "error": err.Error(),
		})
		return
	}
	m.logger.Info(ctx, "post-entry validation", map[string]interface{}{
		"positionID": positionID, "hasStopLoss": state.HasStopLoss,
		"hasTakeProfit": state.HasTakeProfit, "activeOrders": state.ActiveOrders,
	})
}

// OnPrice runs the exit state machine for one price update and applies the
// emitted actions. Must be called from the dispatcher goroutine only.
func (m *Manager) OnPrice(ctx context.Context, price float64) error {
	if m.current == nil {
		return nil
	}
	ev := m.machine.Evaluate(m.current, m.exitState, price)
	prevState := m.exitState
	m.exitState = ev.NewState

	for _, level := range ev.HitTakeProfits {
		m.markTakeProfitHit(ctx, level, price)
	}
	for _, action := range ev.Actions {
		if err := m.apply(ctx, action, price); err != nil {
			m.logger.Error(ctx, err, "failed to apply exit action", map[string]interface{}{
				"action": action.Kind.String(), "positionID": m.currentID(),
			})
		}
		if m.current == nil {
			break // a full close destroyed the slot
		}
	}

	if m.current != nil && prevState != m.exitState {
		m.logger.Debug(ctx, "exit state transition", map[string]interface{}{
			"from": prevState.String(), "to": m.exitState.String(), "positionID": m.currentID(),
		})
	}
	return nil
}

func (m *Manager) apply(ctx context.Context, action domain.ExitAction, price float64) error {
	switch action.Kind {
	case domain.ActionCloseFull:
		return m.closeFull(ctx, price, action.Reason)
	case domain.ActionClosePartial:
		return m.closePartial(ctx, action.Percent, price)
	case domain.ActionMoveStop:
		return m.moveStop(ctx, action.Price)
	case domain.ActionActivateTrailing:
		m.current.StopLoss.IsTrailing = true
		m.current.TrailingDistance = action.Distance
		m.notifier.TrailingActivated(ctx, m.current, action.Distance)
		return m.persist(ctx)
	default:
		return fmt.Errorf("unknown exit action %v", action.Kind)
	}
}

func (m *Manager) markTakeProfitHit(ctx context.Context, level int, price float64) {
	for i := range m.current.TakeProfits {
		if m.current.TakeProfits[i].Level == level {
			m.current.TakeProfits[i].Hit = true
			m.notifier.TakeProfitHit(ctx, m.current, level, price)
			return
		}
	}
}

func (m *Manager) closePartial(ctx context.Context, percent, price float64) error {
	pos := m.current
	closeQty := pos.Remaining * percent / 100
	qtyStr, err := risk.FormatToStep(closeQty, m.cfg.QtyStep)
	if err != nil {
		return err
	}
	if _, err := m.exchange.ClosePosition(ctx, pos.Symbol, domain.CloseSide(pos.Side), qtyStr); err != nil {
		return fmt.Errorf("partial close: %w", err)
	}
	realized := closeQty * profitPerUnit(pos, price)
	pos.Remaining -= closeQty
	pos.PNL += realized
	m.logger.Info(ctx, "partial close filled", map[string]interface{}{
		"positionID": pos.ID, "percent": percent, "closedQty": closeQty, "realized": realized,
	})
	return m.persist(ctx)
}

func (m *Manager) closeFull(ctx context.Context, price float64, reason domain.CloseReason) error {
	pos := m.current
	qtyStr, err := risk.FormatToStep(pos.Remaining, m.cfg.QtyStep)
	if err != nil {
		return err
	}
	order, err := m.exchange.ClosePosition(ctx, pos.Symbol, domain.CloseSide(pos.Side), qtyStr)
	if err != nil {
		// Position stays open; the exchange-side protective orders remain the
		// backstop. The next price update will retry.
		m.exitState = exits.StateProtected
		return fmt.Errorf("full close: %w", err)
	}
	exitPrice := order.AvgPrice
	if exitPrice == 0 {
		exitPrice = price
	}

	m.cancelProtectiveOrders(ctx, pos)

	pos.PNL += pos.Remaining * profitPerUnit(pos, exitPrice)
	pos.Remaining = 0
	pos.ExitPrice = exitPrice
	pos.ExitTime = time.Now().UTC()
	pos.Status = domain.StatusClosed
	pos.CloseReason = reason

	if err := m.posRepo.Update(ctx, pos); err != nil {
		m.logger.Error(ctx, err, "failed to update closed position", map[string]interface{}{"positionID": pos.ID})
	}

	trade := &domain.Trade{
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Quantity:    pos.Quantity,
		Leverage:    pos.Leverage,
		PNL:         pos.PNL,
		EntryTime:   pos.EntryTime,
		ExitTime:    pos.ExitTime,
		CloseReason: reason,
	}
	if _, err := m.tradeRepo.CreateTrade(ctx, trade); err != nil {
		m.logger.Error(ctx, err, "failed to record trade", map[string]interface{}{"positionID": pos.ID})
	}

	m.metrics.PositionsClosed.WithLabelValues(string(reason)).Inc()
	m.stats.UpdateOnClose(ctx, trade, 0)
	m.notifier.TradeClosed(ctx, trade)
	m.logger.Info(ctx, "position closed", map[string]interface{}{
		"positionID": pos.ID, "exitPrice": exitPrice, "pnl": pos.PNL, "reason": reason,
	})

	m.current = nil
	m.exitState = exits.StateClosing
	return nil
}

func (m *Manager) moveStop(ctx context.Context, newPrice float64) error {
	pos := m.current
	qtyStr, err := risk.FormatToStep(pos.Remaining, m.cfg.QtyStep)
	if err != nil {
		return err
	}
	priceStr := strconv.FormatFloat(newPrice, 'f', m.cfg.PricePrecision, 64)
	order, err := m.exchange.UpdateStopLoss(ctx, pos.Symbol, domain.CloseSide(pos.Side), qtyStr, priceStr, pos.StopLoss.OrderID)
	if err != nil {
		return fmt.Errorf("move stop: %w", err)
	}
	id := strconv.FormatInt(order.OrderID, 10)
	pos.StopLoss.OrderID = &id
	pos.StopLoss.Price = newPrice
	if !pos.StopLoss.IsBreakeven && breakevenReached(pos, newPrice) {
		pos.StopLoss.IsBreakeven = true
		m.notifier.BreakevenMoved(ctx, pos, newPrice)
	}
	return m.persist(ctx)
}

// cancelProtectiveOrders best-effort cancels the remaining SL order after a
// market close. TP rungs already hit are gone; unhit ones share the stop's
// fate on most venues, so only the stop id is tracked here.
func (m *Manager) cancelProtectiveOrders(ctx context.Context, pos *domain.Position) {
	if pos.StopLoss.OrderID == nil {
		return
	}
	orderID, err := strconv.ParseInt(*pos.StopLoss.OrderID, 10, 64)
	if err != nil {
		return
	}
	if _, err := m.exchange.CancelOrder(ctx, pos.Symbol, orderID); err != nil {
		m.logger.Warn(ctx, "failed to cancel stop order after close", map[string]interface{}{
			"positionID": pos.ID, "orderID": orderID, "error": err.Error(),
		})
	}
}

func (m *Manager) persist(ctx context.Context) error {
	if m.current == nil || m.current.ID == 0 {
		return nil
	}
	return m.posRepo.Update(ctx, m.current)
}

func (m *Manager) currentID() int64 {
	if m.current == nil {
		return 0
	}
	return m.current.ID
}

func profitPerUnit(pos *domain.Position, price float64) float64 {
	if pos.Side == domain.Short {
		return pos.EntryPrice - price
	}
	return price - pos.EntryPrice
}

func breakevenReached(pos *domain.Position, stopPrice float64) bool {
	if pos.Side == domain.Short {
		return stopPrice <= pos.EntryPrice
	}
	return stopPrice >= pos.EntryPrice
}
