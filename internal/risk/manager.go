// Package risk implements the sizing and exposure checks consulted before
// every entry, plus running drawdown/daily-loss accounting.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"fusionbot/internal/domain"
	"fusionbot/internal/ports"
)

// Config holds configuration for risk management.
type Config struct {
	MaxPositionSize     float64 `yaml:"max_position_size"`
	MaxLeverage         int     `yaml:"max_leverage"`
	MaxDrawdown         float64 `yaml:"max_drawdown"`
	MaxDailyLoss        float64 `yaml:"max_daily_loss"`
	MaxOpenPositions    int     `yaml:"max_open_positions"`
	PositionSizePercent float64 `yaml:"position_size_percent"`
	MaxDailyTrades      int     `yaml:"max_daily_trades"`

	// Confidence-based sizing. Signals between the reduced-size floor and the
	// full-size floor trade at half size; below the reduced floor they block.
	MinConfidenceToEnter        float64 `yaml:"min_confidence_to_enter"`
	MinConfidenceForReducedSize float64 `yaml:"min_confidence_for_reduced_size"`

	Leverage int     `yaml:"leverage"`
	QtyStep  float64 `yaml:"qty_step"` // Exchange quantity step size, e.g. 0.1
}

// Stats holds running risk statistics.
type Stats struct {
	DailyPnL        float64
	CurrentDrawdown float64
	OpenPositions   int
	TotalExposure   float64
	DailyTrades     int
	LastResetTime   int64
}

// Manager implements ports.RiskAdvisor.
type Manager struct {
	cfg   Config
	stats *Stats
}

// NewManager creates a risk manager instance.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = 1
	}
	if cfg.MaxDailyTrades <= 0 {
		cfg.MaxDailyTrades = 100
	}
	if cfg.Leverage <= 0 {
		cfg.Leverage = 1
	}
	if cfg.MinConfidenceToEnter < cfg.MinConfidenceForReducedSize {
		return nil, fmt.Errorf("full-size confidence floor %.2f below reduced-size floor %.2f",
			cfg.MinConfidenceToEnter, cfg.MinConfidenceForReducedSize)
	}
	return &Manager{cfg: cfg, stats: &Stats{}}, nil
}

// CanTrade decides whether the signal may be executed and at what size.
// Blocking here is a trading condition, not an error; the error return is
// reserved for data problems such as an invalid step size.
func (m *Manager) CanTrade(ctx context.Context, signal *domain.Signal, balance float64, openPositions int, trend *domain.TrendContext, flat *ports.FlatMarketResult) (*ports.RiskDecision, error) {
	if openPositions >= m.cfg.MaxOpenPositions {
		return block(fmt.Sprintf("open positions %d at limit %d", openPositions, m.cfg.MaxOpenPositions)), nil
	}
	if m.stats.DailyTrades >= m.cfg.MaxDailyTrades {
		return block(fmt.Sprintf("daily trade limit reached (%d/%d)", m.stats.DailyTrades, m.cfg.MaxDailyTrades)), nil
	}
	if m.cfg.MaxDailyLoss > 0 && m.stats.DailyPnL < -m.cfg.MaxDailyLoss*balance {
		return block(fmt.Sprintf("daily loss %.2f beyond limit", m.stats.DailyPnL)), nil
	}
	if m.cfg.MaxDrawdown > 0 && m.stats.CurrentDrawdown > m.cfg.MaxDrawdown {
		return block(fmt.Sprintf("drawdown %.4f beyond limit %.4f", m.stats.CurrentDrawdown, m.cfg.MaxDrawdown)), nil
	}
	if trend != nil && !trend.Allows(signal.Direction) {
		return block(fmt.Sprintf("signal %s restricted by %s trend", signal.Direction, trend.Bias)), nil
	}
	if flat != nil && flat.IsFlat && flat.Strength > 0.7 {
		return block("pronounced flat market"), nil
	}

	sizeFactor := 1.0
	switch {
	case signal.Confidence >= m.cfg.MinConfidenceToEnter:
		// full size
	case signal.Confidence >= m.cfg.MinConfidenceForReducedSize:
		sizeFactor = 0.5
	default:
		return block(fmt.Sprintf("confidence %.2f below floor %.2f", signal.Confidence, m.cfg.MinConfidenceForReducedSize)), nil
	}

	rawQty := m.positionSize(balance, signal.Price) * sizeFactor
	qty, err := RoundToStep(rawQty, m.cfg.QtyStep)
	if err != nil {
		return nil, fmt.Errorf("position sizing: %w", err)
	}
	if qty <= 0 {
		return block("computed quantity rounds to zero"), nil
	}

	return &ports.RiskDecision{
		Decision:             ports.RiskEnter,
		AdjustedPositionSize: qty,
		Reason:               fmt.Sprintf("size factor %.2f", sizeFactor),
	}, nil
}

// positionSize computes the leveraged base quantity before step rounding.
func (m *Manager) positionSize(balance, price float64) float64 {
	if price <= 0 {
		return 0
	}
	size := balance * m.cfg.PositionSizePercent * float64(m.cfg.Leverage) / price
	if m.cfg.MaxPositionSize > 0 {
		size = math.Min(size, m.cfg.MaxPositionSize)
	}
	return size
}

func block(reason string) *ports.RiskDecision {
	return &ports.RiskDecision{Decision: ports.RiskBlock, Reason: reason}
}

// UpdateOnClose feeds a completed trade into the running statistics.
func (m *Manager) UpdateOnClose(ctx context.Context, trade *domain.Trade, balance float64) {
	m.stats.DailyPnL += trade.PNL
	if trade.PNL < 0 && balance > 0 {
		m.stats.CurrentDrawdown = math.Max(m.stats.CurrentDrawdown, -trade.PNL/balance)
	}
	m.stats.OpenPositions--
	m.stats.TotalExposure -= trade.Quantity * trade.EntryPrice * float64(trade.Leverage)
}

// UpdateOnOpen records a newly opened position in the running statistics.
func (m *Manager) UpdateOnOpen(ctx context.Context, pos *domain.Position) {
	m.stats.OpenPositions++
	m.stats.TotalExposure += pos.Quantity * pos.EntryPrice * float64(pos.Leverage)
	m.stats.DailyTrades++
}

// SeedDailyTrades primes the daily trade counter after a restart, from the
// persisted trade history.
func (m *Manager) SeedDailyTrades(count int) {
	m.stats.DailyTrades = count
}

// ResetDailyStats resets daily statistics. Scheduled at midnight UTC.
func (m *Manager) ResetDailyStats(ctx context.Context) {
	m.stats.DailyPnL = 0
	m.stats.DailyTrades = 0
	m.stats.LastResetTime = time.Now().Unix()
}

// GetStats returns the current risk statistics.
func (m *Manager) GetStats() *Stats {
	return m.stats
}
