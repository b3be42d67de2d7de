package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusionbot/internal/domain"
	"fusionbot/internal/ports"
)

func testConfig() Config {
	return Config{
		MaxPositionSize:             5.0,
		MaxLeverage:                 20,
		MaxDrawdown:                 0.15,
		MaxDailyLoss:                0.05,
		MaxOpenPositions:            1,
		PositionSizePercent:         0.05,
		MaxDailyTrades:              10,
		MinConfidenceToEnter:        0.65,
		MinConfidenceForReducedSize: 0.5,
		Leverage:                    4,
		QtyStep:                     0.001,
	}
}

func testSignal(confidence float64) *domain.Signal {
	return &domain.Signal{
		Direction:  domain.Long,
		Price:      2000,
		StopLoss:   1970,
		Confidence: confidence,
		Timestamp:  time.Now(),
	}
}

func restrictedTrend(bias domain.TrendBias, blocked domain.Direction) *domain.TrendContext {
	tc := domain.NeutralTrendContext()
	tc.Bias = bias
	tc.Strength = 1
	tc.RestrictedDirections[blocked] = true
	return tc
}

func TestManager_CanTrade_FullSize(t *testing.T) {
	m, err := NewManager(testConfig())
	require.NoError(t, err)

	dec, err := m.CanTrade(context.Background(), testSignal(0.8), 10000, 0, domain.NeutralTrendContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, ports.RiskEnter, dec.Decision)
	// 10000 * 0.05 * 4 / 2000 = 1.0, already on the step grid.
	assert.InDelta(t, 1.0, dec.AdjustedPositionSize, 1e-9)
}

func TestManager_CanTrade_ReducedSize(t *testing.T) {
	m, err := NewManager(testConfig())
	require.NoError(t, err)

	dec, err := m.CanTrade(context.Background(), testSignal(0.55), 10000, 0, domain.NeutralTrendContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, ports.RiskEnter, dec.Decision)
	assert.InDelta(t, 0.5, dec.AdjustedPositionSize, 1e-9)
}

func TestManager_CanTrade_Blocks(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		balance    float64
		open       int
		trend      *domain.TrendContext
		flat       *ports.FlatMarketResult
		prepare    func(*Manager)
		reason     string
	}{
		{
			name: "confidence below floor", confidence: 0.4, balance: 10000,
			trend: domain.NeutralTrendContext(), reason: "below floor",
		},
		{
			name: "position slot occupied", confidence: 0.8, balance: 10000, open: 1,
			trend: domain.NeutralTrendContext(), reason: "at limit",
		},
		{
			name: "short restricted by strong bullish trend", confidence: 0.8, balance: 10000,
			trend: restrictedTrend(domain.BiasBullish, domain.Short), reason: "restricted by BULLISH trend",
		},
		{
			name: "pronounced flat market", confidence: 0.8, balance: 10000,
			trend: domain.NeutralTrendContext(), flat: &ports.FlatMarketResult{IsFlat: true, Strength: 0.9},
			reason: "flat market",
		},
		{
			name: "daily trade limit", confidence: 0.8, balance: 10000,
			trend:   domain.NeutralTrendContext(),
			prepare: func(m *Manager) { m.SeedDailyTrades(10) },
			reason:  "daily trade limit",
		},
		{
			name: "daily loss limit", confidence: 0.8, balance: 10000,
			trend: domain.NeutralTrendContext(),
			prepare: func(m *Manager) {
				m.UpdateOnClose(context.Background(), &domain.Trade{PNL: -600, Quantity: 1, EntryPrice: 2000, Leverage: 4}, 10000)
				m.stats.CurrentDrawdown = 0 // isolate the daily-loss check
			},
			reason: "daily loss",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(testConfig())
			require.NoError(t, err)
			if tt.prepare != nil {
				tt.prepare(m)
			}

			sig := testSignal(tt.confidence)
			if tt.trend != nil && !tt.trend.Allows(domain.Short) {
				sig.Direction = domain.Short
			}
			dec, err := m.CanTrade(context.Background(), sig, tt.balance, tt.open, tt.trend, tt.flat)
			require.NoError(t, err)
			assert.Equal(t, ports.RiskBlock, dec.Decision)
			assert.Contains(t, dec.Reason, tt.reason)
		})
	}
}

func TestManager_CanTrade_ModerateTrendPermitsCounterTrade(t *testing.T) {
	m, err := NewManager(testConfig())
	require.NoError(t, err)

	// A moderate bullish trend restricts nothing; only a full-strength trend
	// populates the restricted set.
	trend := domain.NeutralTrendContext()
	trend.Bias = domain.BiasBullish
	trend.Strength = 2.0 / 3.0

	sig := testSignal(0.8)
	sig.Direction = domain.Short
	dec, err := m.CanTrade(context.Background(), sig, 10000, 0, trend, nil)
	require.NoError(t, err)
	assert.Equal(t, ports.RiskEnter, dec.Decision)
}

func TestManager_CanTrade_MildFlatAllowed(t *testing.T) {
	m, err := NewManager(testConfig())
	require.NoError(t, err)

	dec, err := m.CanTrade(context.Background(), testSignal(0.8), 10000, 0, domain.NeutralTrendContext(),
		&ports.FlatMarketResult{IsFlat: true, Strength: 0.4})
	require.NoError(t, err)
	assert.Equal(t, ports.RiskEnter, dec.Decision)
}

func TestManager_CanTrade_CapsAtMaxPositionSize(t *testing.T) {
	m, err := NewManager(testConfig())
	require.NoError(t, err)

	// 1000000 * 0.05 * 4 / 2000 = 100, clamped to MaxPositionSize 5.
	dec, err := m.CanTrade(context.Background(), testSignal(0.8), 1000000, 0, domain.NeutralTrendContext(), nil)
	require.NoError(t, err)
	assert.Equal(t, ports.RiskEnter, dec.Decision)
	assert.InDelta(t, 5.0, dec.AdjustedPositionSize, 1e-9)
}

func TestManager_CanTrade_InvalidStepIsError(t *testing.T) {
	cfg := testConfig()
	cfg.QtyStep = 0
	m, err := NewManager(cfg)
	require.NoError(t, err)

	_, err = m.CanTrade(context.Background(), testSignal(0.8), 10000, 0, domain.NeutralTrendContext(), nil)
	assert.ErrorIs(t, err, ports.ErrInvalidStepSize)
}

func TestManager_StatsLifecycle(t *testing.T) {
	m, err := NewManager(testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	pos := &domain.Position{Quantity: 1, EntryPrice: 2000, Leverage: 4}
	m.UpdateOnOpen(ctx, pos)
	stats := m.GetStats()
	assert.Equal(t, 1, stats.OpenPositions)
	assert.Equal(t, 1, stats.DailyTrades)
	assert.InDelta(t, 8000.0, stats.TotalExposure, 1e-9)

	m.UpdateOnClose(ctx, &domain.Trade{PNL: -100, Quantity: 1, EntryPrice: 2000, Leverage: 4}, 10000)
	stats = m.GetStats()
	assert.Equal(t, 0, stats.OpenPositions)
	assert.InDelta(t, -100.0, stats.DailyPnL, 1e-9)
	assert.InDelta(t, 0.01, stats.CurrentDrawdown, 1e-9)
	assert.Zero(t, stats.TotalExposure)

	m.ResetDailyStats(ctx)
	stats = m.GetStats()
	assert.Zero(t, stats.DailyPnL)
	assert.Zero(t, stats.DailyTrades)
	// Drawdown survives the daily reset.
	assert.InDelta(t, 0.01, stats.CurrentDrawdown, 1e-9)
}

func TestNewManager_RejectsInvertedConfidenceFloors(t *testing.T) {
	cfg := testConfig()
	cfg.MinConfidenceToEnter = 0.4
	cfg.MinConfidenceForReducedSize = 0.6
	_, err := NewManager(cfg)
	assert.Error(t, err)
}
