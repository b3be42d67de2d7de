package exits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusionbot/internal/domain"
)

func newMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := New(DefaultConfig())
	require.NoError(t, err)
	return m
}

func openLong() *domain.Position {
	return &domain.Position{
		Symbol:     "ETHUSDT",
		Side:       domain.Long,
		EntryPrice: 2000,
		Quantity:   1,
		Remaining:  1,
		Leverage:   4,
		Status:     domain.StatusOpen,
		StopLoss:   domain.StopLossState{Price: 1970, InitialPrice: 1970},
		TakeProfits: []domain.TakeProfitLevel{
			{Level: 1, Price: 2030, SizePercent: 50},
			{Level: 2, Price: 2060, SizePercent: 30},
			{Level: 3, Price: 2090, SizePercent: 20},
		},
	}
}

func openShort() *domain.Position {
	pos := openLong()
	pos.Side = domain.Short
	pos.StopLoss = domain.StopLossState{Price: 2030, InitialPrice: 2030}
	pos.TakeProfits = []domain.TakeProfitLevel{
		{Level: 1, Price: 1970, SizePercent: 50},
		{Level: 2, Price: 1940, SizePercent: 30},
		{Level: 3, Price: 1910, SizePercent: 20},
	}
	return pos
}

func kinds(actions []domain.ExitAction) []domain.ExitActionKind {
	out := make([]domain.ExitActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestMachine_StopLossBeatsEverything(t *testing.T) {
	m := newMachine(t)

	t.Run("long stop touch", func(t *testing.T) {
		ev := m.Evaluate(openLong(), StateProtected, 1969)
		assert.Equal(t, StateClosing, ev.NewState)
		require.Len(t, ev.Actions, 1)
		assert.Equal(t, domain.ActionCloseFull, ev.Actions[0].Kind)
		assert.Equal(t, domain.CloseReasonStopLoss, ev.Actions[0].Reason)
	})

	t.Run("short stop touch", func(t *testing.T) {
		ev := m.Evaluate(openShort(), StateProtected, 2031)
		assert.Equal(t, StateClosing, ev.NewState)
		require.Len(t, ev.Actions, 1)
		assert.Equal(t, domain.CloseReasonStopLoss, ev.Actions[0].Reason)
	})

	t.Run("exact stop price triggers", func(t *testing.T) {
		ev := m.Evaluate(openLong(), StateProtected, 1970)
		assert.Equal(t, StateClosing, ev.NewState)
	})
}

func TestMachine_FirstTakeProfitActivatesTrailing(t *testing.T) {
	m := newMachine(t)
	pos := openLong()

	ev := m.Evaluate(pos, StateProtected, 2031)
	assert.Equal(t, StateTrailing, ev.NewState)
	assert.Equal(t, []int{1}, ev.HitTakeProfits)

	got := kinds(ev.Actions)
	assert.Contains(t, got, domain.ActionClosePartial)
	assert.Contains(t, got, domain.ActionActivateTrailing)
	for _, a := range ev.Actions {
		switch a.Kind {
		case domain.ActionClosePartial:
			assert.InDelta(t, 50.0, a.Percent, 1e-9)
			assert.Equal(t, domain.CloseReasonTakeProfit, a.Reason)
		case domain.ActionActivateTrailing:
			// 0.5% of entry 2000.
			assert.InDelta(t, 10.0, a.Distance, 1e-9)
		}
	}
}

func TestMachine_FinalRungClosesFull(t *testing.T) {
	m := newMachine(t)
	pos := openLong()
	pos.TakeProfits[0].Hit = true
	pos.TakeProfits[1].Hit = true
	pos.Remaining = 0.2

	ev := m.Evaluate(pos, StateTrailing, 2095)
	assert.Equal(t, StateClosing, ev.NewState)
	assert.Equal(t, []int{3}, ev.HitTakeProfits)
	require.Len(t, ev.Actions, 1)
	assert.Equal(t, domain.ActionCloseFull, ev.Actions[0].Kind)
	assert.Equal(t, domain.CloseReasonTakeProfit, ev.Actions[0].Reason)
}

func TestMachine_GapThroughWholeLadder(t *testing.T) {
	m := newMachine(t)

	// One candle blows through every rung: the evaluation must fold the whole
	// ladder into a single full close rather than emitting three partials.
	ev := m.Evaluate(openLong(), StateProtected, 2100)
	assert.Equal(t, StateClosing, ev.NewState)
	assert.Equal(t, []int{1, 2, 3}, ev.HitTakeProfits)
	assert.Equal(t, domain.ActionCloseFull, ev.Actions[len(ev.Actions)-1].Kind)
}

func TestMachine_BreakevenMove(t *testing.T) {
	m := newMachine(t)

	t.Run("fires once price clears the buffer", func(t *testing.T) {
		// Buffer is 0.3%: entry 2000 needs 2006.
		ev := m.Evaluate(openLong(), StateProtected, 2006)
		require.Len(t, ev.Actions, 1)
		assert.Equal(t, domain.ActionMoveStop, ev.Actions[0].Kind)
		assert.InDelta(t, 2000.0, ev.Actions[0].Price, 1e-9)
		assert.Equal(t, StateProtected, ev.NewState)
	})

	t.Run("does not fire below the buffer", func(t *testing.T) {
		ev := m.Evaluate(openLong(), StateProtected, 2005)
		assert.Empty(t, ev.Actions)
	})

	t.Run("does not fire twice", func(t *testing.T) {
		pos := openLong()
		pos.StopLoss.IsBreakeven = true
		pos.StopLoss.Price = 2000
		ev := m.Evaluate(pos, StateProtected, 2010)
		assert.Empty(t, ev.Actions)
	})

	t.Run("short side clears downward", func(t *testing.T) {
		ev := m.Evaluate(openShort(), StateProtected, 1994)
		require.Len(t, ev.Actions, 1)
		assert.Equal(t, domain.ActionMoveStop, ev.Actions[0].Kind)
		assert.InDelta(t, 2000.0, ev.Actions[0].Price, 1e-9)
	})
}

func TestMachine_TrailingImprovesOnly(t *testing.T) {
	m := newMachine(t)

	trailingLong := func(stop float64) *domain.Position {
		pos := openLong()
		pos.TakeProfits[0].Hit = true
		pos.StopLoss = domain.StopLossState{Price: stop, InitialPrice: 1970, IsBreakeven: true, IsTrailing: true}
		pos.TrailingDistance = 10
		return pos
	}

	t.Run("stop follows favorable movement", func(t *testing.T) {
		ev := m.Evaluate(trailingLong(2020), StateTrailing, 2045)
		require.Len(t, ev.Actions, 1)
		assert.Equal(t, domain.ActionMoveStop, ev.Actions[0].Kind)
		assert.InDelta(t, 2035.0, ev.Actions[0].Price, 1e-9)
	})

	t.Run("stop never loosens on a pullback", func(t *testing.T) {
		ev := m.Evaluate(trailingLong(2035), StateTrailing, 2040)
		assert.Empty(t, ev.Actions) // candidate 2030 would loosen the 2035 stop
	})

	t.Run("trail cannot drag the stop back below a same-pass breakeven move", func(t *testing.T) {
		// Price 2007 both clears the breakeven buffer and trails to 1997.
		// The breakeven move to entry must win; emitting the 1997 trail after
		// it would re-expose the position below entry.
		pos := trailingLong(1980)
		pos.StopLoss.IsBreakeven = false
		ev := m.Evaluate(pos, StateTrailing, 2007)
		require.Len(t, ev.Actions, 1)
		assert.Equal(t, domain.ActionMoveStop, ev.Actions[0].Kind)
		assert.InDelta(t, 2000.0, ev.Actions[0].Price, 1e-9)
	})

	t.Run("trail past entry still applies after a same-pass breakeven move", func(t *testing.T) {
		// At 2015 the trail lands at 2005, above entry, so both moves are
		// emitted and the trailing one tightens further.
		pos := trailingLong(1980)
		pos.StopLoss.IsBreakeven = false
		ev := m.Evaluate(pos, StateTrailing, 2015)
		require.Len(t, ev.Actions, 2)
		assert.InDelta(t, 2000.0, ev.Actions[0].Price, 1e-9)
		assert.InDelta(t, 2005.0, ev.Actions[1].Price, 1e-9)
	})

	t.Run("short trail moves down only", func(t *testing.T) {
		pos := openShort()
		pos.TakeProfits[0].Hit = true
		pos.StopLoss = domain.StopLossState{Price: 1980, InitialPrice: 2030, IsBreakeven: true, IsTrailing: true}
		pos.TrailingDistance = 10

		ev := m.Evaluate(pos, StateTrailing, 1955)
		require.Len(t, ev.Actions, 1)
		assert.InDelta(t, 1965.0, ev.Actions[0].Price, 1e-9)
	})
}

func TestMachine_TerminalStates(t *testing.T) {
	m := newMachine(t)

	ev := m.Evaluate(openLong(), StateClosing, 1000)
	assert.Empty(t, ev.Actions)
	assert.Equal(t, StateClosing, ev.NewState)

	closed := openLong()
	closed.Status = domain.StatusClosed
	ev = m.Evaluate(closed, StateProtected, 1000)
	assert.Empty(t, ev.Actions)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakevenBufferPercent = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.TrailingDistancePercent = -1
	_, err = New(cfg)
	assert.Error(t, err)
}
