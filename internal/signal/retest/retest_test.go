package retest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusionbot/internal/domain"
)

func newGate(t *testing.T) *Gate {
	t.Helper()
	g, err := New(DefaultConfig())
	require.NoError(t, err)
	return g
}

// impulseUp builds five candles rallying from 100 to 101: a +1% move with
// impulse low 100 and impulse high 101.
func impulseUp() []*domain.Kline {
	return []*domain.Kline{
		{Open: 100.0, High: 100.2, Low: 100.0, Close: 100.2},
		{Open: 100.2, High: 100.4, Low: 100.1, Close: 100.4},
		{Open: 100.4, High: 100.6, Low: 100.3, Close: 100.6},
		{Open: 100.6, High: 100.8, Low: 100.5, Close: 100.8},
		{Open: 100.8, High: 101.0, Low: 100.7, Close: 101.0},
	}
}

func flatCandles() []*domain.Kline {
	out := make([]*domain.Kline, 5)
	for i := range out {
		out[i] = &domain.Kline{Open: 100, High: 100.1, Low: 99.9, Close: 100.05}
	}
	return out
}

func longSignal() *domain.Signal {
	return &domain.Signal{Direction: domain.Long, Price: 101, Confidence: 0.8, Timestamp: time.Now()}
}

func TestGate_DetectImpulse(t *testing.T) {
	g := newGate(t)

	impulse, movePct := g.DetectImpulse(impulseUp())
	assert.True(t, impulse)
	assert.InDelta(t, 1.0, movePct, 1e-9)

	impulse, movePct = g.DetectImpulse(flatCandles())
	assert.False(t, impulse)
	assert.InDelta(t, 0.05, movePct, 1e-9)

	// Downward impulses count too.
	down := []*domain.Kline{
		{Open: 101.0, Close: 100.8}, {Open: 100.8, Close: 100.6},
		{Open: 100.6, Close: 100.4}, {Open: 100.4, Close: 100.2},
		{Open: 100.2, Close: 100.0},
	}
	impulse, movePct = g.DetectImpulse(down)
	assert.True(t, impulse)
	assert.Negative(t, movePct)

	// Too little history.
	impulse, _ = g.DetectImpulse(impulseUp()[:3])
	assert.False(t, impulse)
}

func TestGate_CreateZone_LongBand(t *testing.T) {
	g := newGate(t)
	now := time.Now()

	zone, err := g.CreateZone("ETHUSDT", longSignal(), impulseUp(), now)
	require.NoError(t, err)

	// Impulse range is 100..101; the 50-61.8% retracement down from the high
	// is [101 - 0.618, 101 - 0.5].
	assert.InDelta(t, 100.382, zone.ZoneLow, 1e-9)
	assert.InDelta(t, 100.5, zone.ZoneHigh, 1e-9)
	assert.Equal(t, domain.Long, zone.Direction)
	assert.Equal(t, now.Add(30*time.Minute), zone.ExpiresAt)
}

func TestGate_CreateZone_ShortBand(t *testing.T) {
	g := newGate(t)
	sig := &domain.Signal{Direction: domain.Short, Price: 100, Confidence: 0.8, Timestamp: time.Now()}

	zone, err := g.CreateZone("ETHUSDT", sig, impulseUp(), time.Now())
	require.NoError(t, err)

	// Retrace up from the impulse low.
	assert.InDelta(t, 100.5, zone.ZoneLow, 1e-9)
	assert.InDelta(t, 100.618, zone.ZoneHigh, 1e-9)
}

func TestGate_CheckRetest(t *testing.T) {
	now := time.Now()

	t.Run("calm re-entry consumes the zone", func(t *testing.T) {
		g := newGate(t)
		sig := longSignal()
		_, err := g.CreateZone("ETHUSDT", sig, impulseUp(), now)
		require.NoError(t, err)

		got, reason := g.CheckRetest("ETHUSDT", 100.45, 90, 100, nil, now.Add(time.Minute))
		require.NotNil(t, got, reason)
		assert.Same(t, sig, got)
		assert.Nil(t, g.PendingZone("ETHUSDT", now.Add(time.Minute)))
	})

	t.Run("price outside zone keeps waiting", func(t *testing.T) {
		g := newGate(t)
		_, err := g.CreateZone("ETHUSDT", longSignal(), impulseUp(), now)
		require.NoError(t, err)

		got, reason := g.CheckRetest("ETHUSDT", 100.9, 90, 100, nil, now.Add(time.Minute))
		assert.Nil(t, got)
		assert.Contains(t, reason, "outside zone")
		assert.NotNil(t, g.PendingZone("ETHUSDT", now.Add(time.Minute)))
	})

	t.Run("high-volume touch is a breakout, not a retest", func(t *testing.T) {
		g := newGate(t)
		_, err := g.CreateZone("ETHUSDT", longSignal(), impulseUp(), now)
		require.NoError(t, err)

		got, reason := g.CheckRetest("ETHUSDT", 100.45, 250, 100, nil, now.Add(time.Minute))
		assert.Nil(t, got)
		assert.Contains(t, reason, "too aggressive")
		assert.NotNil(t, g.PendingZone("ETHUSDT", now.Add(time.Minute)))
	})

	t.Run("broken structure drops the zone", func(t *testing.T) {
		g := newGate(t)
		_, err := g.CreateZone("ETHUSDT", longSignal(), impulseUp(), now)
		require.NoError(t, err)

		broken := func(domain.Direction) bool { return false }
		got, reason := g.CheckRetest("ETHUSDT", 100.45, 90, 100, broken, now.Add(time.Minute))
		assert.Nil(t, got)
		assert.Contains(t, reason, "zone dropped")
		assert.Nil(t, g.PendingZone("ETHUSDT", now.Add(time.Minute)))
	})

	t.Run("no zone pending", func(t *testing.T) {
		g := newGate(t)
		got, reason := g.CheckRetest("ETHUSDT", 100.45, 90, 100, nil, now)
		assert.Nil(t, got)
		assert.Empty(t, reason)
	})
}

func TestGate_ZoneExpiry(t *testing.T) {
	g := newGate(t)
	now := time.Now()
	_, err := g.CreateZone("ETHUSDT", longSignal(), impulseUp(), now)
	require.NoError(t, err)

	// Lazy purge through PendingZone.
	assert.NotNil(t, g.PendingZone("ETHUSDT", now.Add(29*time.Minute)))
	assert.Nil(t, g.PendingZone("ETHUSDT", now.Add(31*time.Minute)))
}

func TestGate_Sweep(t *testing.T) {
	g := newGate(t)
	now := time.Now()
	_, err := g.CreateZone("ETHUSDT", longSignal(), impulseUp(), now)
	require.NoError(t, err)
	_, err = g.CreateZone("BTCUSDT", longSignal(), impulseUp(), now.Add(10*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 0, g.Sweep(now.Add(20*time.Minute)))
	assert.Equal(t, 1, g.Sweep(now.Add(35*time.Minute))) // only the older zone expired
	assert.Equal(t, 1, g.Sweep(now.Add(2*time.Hour)))
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero impulse", func(c *Config) { c.MinImpulsePercent = 0 }},
		{"inverted fib band", func(c *Config) { c.FibStart = 0.7; c.FibEnd = 0.5 }},
		{"fib end at 1", func(c *Config) { c.FibEnd = 1.0 }},
		{"zero wait", func(c *Config) { c.MaxRetestWaitMs = 0 }},
		{"zero volume multiplier", func(c *Config) { c.VolumeMultiplier = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}
