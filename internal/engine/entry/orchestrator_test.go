package entry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fusionbot/internal/adapters/logger"
	"fusionbot/internal/domain"
	"fusionbot/internal/metrics"
	"fusionbot/internal/ports"
	"fusionbot/internal/signal/retest"
)

type stubRisk struct {
	decision *ports.RiskDecision
	err      error
}

func (r *stubRisk) CanTrade(context.Context, *domain.Signal, float64, int, *domain.TrendContext, *ports.FlatMarketResult) (*ports.RiskDecision, error) {
	return r.decision, r.err
}

type stubFilter struct {
	name    string
	allowed bool
	reason  string
	err     error
	calls   int
}

func (f *stubFilter) Name() string { return f.name }

func (f *stubFilter) Allow(context.Context, domain.Direction) (bool, string, error) {
	f.calls++
	return f.allowed, f.reason, f.err
}

func enterDecision(qty float64) *ports.RiskDecision {
	return &ports.RiskDecision{Decision: ports.RiskEnter, AdjustedPositionSize: qty}
}

func quietCandles() []*domain.Kline {
	out := make([]*domain.Kline, 5)
	for i := range out {
		out[i] = &domain.Kline{Open: 100, High: 100.1, Low: 99.9, Close: 100.05, Volume: 10}
	}
	return out
}

func impulseCandles() []*domain.Kline {
	return []*domain.Kline{
		{Open: 100.0, High: 100.2, Low: 100.0, Close: 100.2},
		{Open: 100.2, High: 100.4, Low: 100.1, Close: 100.4},
		{Open: 100.4, High: 100.6, Low: 100.3, Close: 100.6},
		{Open: 100.6, High: 100.8, Low: 100.5, Close: 100.8},
		{Open: 100.8, High: 101.0, Low: 100.7, Close: 101.0},
	}
}

func testInput() Input {
	return Input{
		Signal: &domain.Signal{
			Direction:  domain.Long,
			Price:      100,
			StopLoss:   98.5,
			Confidence: 0.8,
			Timestamp:  time.Now(),
		},
		Balance: 10000,
		Trend:   domain.NeutralTrendContext(),
		Candles: quietCandles(),
		Now:     time.Now(),
	}
}

func newOrchestrator(t *testing.T, killPath string, risk ports.RiskAdvisor, filters ...SoftFilter) *Orchestrator {
	t.Helper()
	gate, err := retest.New(retest.DefaultConfig())
	require.NoError(t, err)
	o, err := New(logger.NewNop(), NewKillSwitch(killPath), risk, gate, metrics.Nop(), "ETHUSDT", filters...)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_Enter(t *testing.T) {
	o := newOrchestrator(t, "", &stubRisk{decision: enterDecision(1.5)})

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictEnter, dec.Verdict)
	assert.InDelta(t, 1.5, dec.Quantity, 1e-9)
}

func TestOrchestrator_KillSwitchBlocksFirst(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "killswitch")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	// The risk stub would error; the kill-switch must short-circuit before it.
	o := newOrchestrator(t, marker, &stubRisk{err: errors.New("must not be reached")})

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictBlock, dec.Verdict)
	assert.Equal(t, "killSwitch", dec.Stage)
}

func TestOrchestrator_KillSwitchDisengagesWithoutRestart(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "killswitch")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	o := newOrchestrator(t, marker, &stubRisk{decision: enterDecision(1)})

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictBlock, dec.Verdict)

	require.NoError(t, os.Remove(marker))
	dec, err = o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictEnter, dec.Verdict)
}

func TestOrchestrator_RiskBlock(t *testing.T) {
	o := newOrchestrator(t, "", &stubRisk{decision: &ports.RiskDecision{
		Decision: ports.RiskBlock, Reason: "daily trade limit reached",
	}})

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictBlock, dec.Verdict)
	assert.Equal(t, "risk", dec.Stage)
	assert.Contains(t, dec.Reason, "daily trade limit")
}

func TestOrchestrator_RiskErrorPropagates(t *testing.T) {
	o := newOrchestrator(t, "", &stubRisk{err: ports.ErrInvalidStepSize})

	_, err := o.Evaluate(context.Background(), testInput())
	assert.ErrorIs(t, err, ports.ErrInvalidStepSize)
}

func TestOrchestrator_ImpulseDefers(t *testing.T) {
	o := newOrchestrator(t, "", &stubRisk{decision: enterDecision(1)})

	in := testInput()
	in.Candles = impulseCandles()
	dec, err := o.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, VerdictDefer, dec.Verdict)
	assert.Equal(t, "retest", dec.Stage)
	assert.Contains(t, dec.Reason, "awaiting retracement")
}

func TestOrchestrator_ResurrectedSignalSkipsImpulseCheck(t *testing.T) {
	o := newOrchestrator(t, "", &stubRisk{decision: enterDecision(1)})

	// The retracement into a retest zone is itself a sharp move; a signal the
	// zone already resurrected must enter instead of deferring again.
	in := testInput()
	in.Candles = impulseCandles()
	in.FromRetest = true
	dec, err := o.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, VerdictEnter, dec.Verdict)
}

func TestOrchestrator_SoftFilterBlock(t *testing.T) {
	funding := &stubFilter{name: "fundingRate", allowed: false, reason: "funding rate adverse"}
	o := newOrchestrator(t, "", &stubRisk{decision: enterDecision(1)}, funding)

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictBlock, dec.Verdict)
	assert.Equal(t, "fundingRate", dec.Stage)
	assert.Equal(t, 1, funding.calls)
}

func TestOrchestrator_SoftFilterErrorFailsOpen(t *testing.T) {
	broken := &stubFilter{name: "btcCorrelation", err: errors.New("exchange timeout")}
	o := newOrchestrator(t, "", &stubRisk{decision: enterDecision(1)}, broken)

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, VerdictEnter, dec.Verdict)
	assert.Equal(t, 1, broken.calls)
}

func TestOrchestrator_FiltersRunInOrder(t *testing.T) {
	first := &stubFilter{name: "first", allowed: false, reason: "blocked here"}
	second := &stubFilter{name: "second", allowed: true}
	o := newOrchestrator(t, "", &stubRisk{decision: enterDecision(1)}, first, second)

	dec, err := o.Evaluate(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, "first", dec.Stage)
	assert.Zero(t, second.calls)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	gate, err := retest.New(retest.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil, NewKillSwitch(""), &stubRisk{}, gate, metrics.Nop(), "ETHUSDT")
	assert.ErrorIs(t, err, ports.ErrMissingCollaborator)

	_, err = New(logger.NewNop(), NewKillSwitch(""), &stubRisk{}, gate, metrics.Nop(), "")
	assert.ErrorIs(t, err, ports.ErrMissingCollaborator)
}

func TestKillSwitch_EmptyPathNeverEngaged(t *testing.T) {
	assert.False(t, NewKillSwitch("").Engaged())
}
