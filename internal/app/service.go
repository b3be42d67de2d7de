// Package app wires the decision components into the single-writer event
// loop that drives the bot. One dispatcher goroutine owns the position slot,
// the flip guard, and the trend context; stream handlers only enqueue.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"fusionbot/config"
	"fusionbot/internal/analytics"
	"fusionbot/internal/domain"
	"fusionbot/internal/engine/entry"
	"fusionbot/internal/engine/lifecycle"
	"fusionbot/internal/indicators"
	"fusionbot/internal/metrics"
	"fusionbot/internal/ports"
	"fusionbot/internal/risk"
	"fusionbot/internal/signal/alignment"
	"fusionbot/internal/signal/flipguard"
	"fusionbot/internal/signal/retest"
	"fusionbot/internal/signal/scorer"
)

const (
	maxKlineCacheSize = 500 // Limit cache size to avoid memory issues
	eventQueueSize    = 64  // Bounded queue per event type; overflow drops with a warning
	quoteAsset        = "USDT"

	// Trades pulled for the end-of-day performance summary.
	dailyReportTradeLimit = 50

	// Stop and ladder geometry, in ATR multiples of the entry price.
	stopATRMultiple = 1.5

	// Candle range below this percent of price over the volume lookback is
	// treated as a flat market.
	flatRangePercent = 0.15
)

// TradingService orchestrates the signal-fusion pipeline and the position
// lifecycle. All mutable trading state is confined to the dispatcher
// goroutine, so no mutex guards it.
type TradingService struct {
	cfg       *config.Config
	logger    ports.Logger
	exchange  ports.ExchangeClient
	posRepo   ports.PositionRepository
	tradeRepo ports.TradeRepository

	scorer    *scorer.Scorer
	alignGate *alignment.Gate
	flipGuard *flipguard.Guard
	retest    *retest.Gate
	orch      *entry.Orchestrator
	lifecycle *lifecycle.Manager
	riskMgr   *risk.Manager
	snapshots *indicators.SnapshotBuilder
	metrics   *metrics.Metrics

	// Dispatcher-owned state.
	entryCache   []*domain.Kline
	primaryCache []*domain.Kline
	trendCtx     *domain.TrendContext

	entryCh   chan *domain.Kline
	primaryCh chan *domain.Kline
	sweepCh   chan time.Time
	resetCh   chan time.Time
}

// Deps bundles the collaborators of the trading service. Everything is
// required except Metrics, which defaults to a no-op set.
type Deps struct {
	Logger    ports.Logger
	Exchange  ports.ExchangeClient
	PosRepo   ports.PositionRepository
	TradeRepo ports.TradeRepository
	Scorer    *scorer.Scorer
	AlignGate *alignment.Gate
	FlipGuard *flipguard.Guard
	Retest    *retest.Gate
	Orch      *entry.Orchestrator
	Lifecycle *lifecycle.Manager
	RiskMgr   *risk.Manager
	Snapshots *indicators.SnapshotBuilder
	Metrics   *metrics.Metrics
}

// NewTradingService creates a new application service instance.
func NewTradingService(cfg *config.Config, deps Deps) (*TradingService, error) {
	if cfg == nil || deps.Logger == nil || deps.Exchange == nil || deps.PosRepo == nil || deps.TradeRepo == nil ||
		deps.Scorer == nil || deps.AlignGate == nil || deps.FlipGuard == nil || deps.Retest == nil ||
		deps.Orch == nil || deps.Lifecycle == nil || deps.RiskMgr == nil || deps.Snapshots == nil {
		return nil, fmt.Errorf("%w: trading service", ports.ErrMissingCollaborator)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Nop()
	}

	return &TradingService{
		cfg:       cfg,
		logger:    deps.Logger,
		exchange:  deps.Exchange,
		posRepo:   deps.PosRepo,
		tradeRepo: deps.TradeRepo,
		scorer:    deps.Scorer,
		alignGate: deps.AlignGate,
		flipGuard: deps.FlipGuard,
		retest:    deps.Retest,
		orch:      deps.Orch,
		lifecycle: deps.Lifecycle,
		riskMgr:   deps.RiskMgr,
		snapshots: deps.Snapshots,
		metrics:   m,
		trendCtx:  domain.NeutralTrendContext(),
		entryCh:   make(chan *domain.Kline, eventQueueSize),
		primaryCh: make(chan *domain.Kline, eventQueueSize),
		sweepCh:   make(chan time.Time, 1),
		resetCh:   make(chan time.Time, 1),
	}, nil
}

// Start runs the service until the context is cancelled or a stream dies.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	if err := s.initialize(ctx); err != nil {
		return err
	}

	// Cron feeds the dispatcher through channels so scheduled work runs on
	// the same goroutine as everything else.
	sched := cron.New()
	if _, err := sched.AddFunc("* * * * *", func() { nonBlockingSend(s.sweepCh, time.Now().UTC()) }); err != nil {
		return fmt.Errorf("failed to schedule retest sweep: %w", err)
	}
	if _, err := sched.AddFunc("0 0 * * *", func() { nonBlockingSend(s.resetCh, time.Now().UTC()) }); err != nil {
		return fmt.Errorf("failed to schedule daily reset: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	entryDone, entryStop, err := s.exchange.StreamKlines(ctx, s.cfg.Symbol, s.cfg.EntryInterval,
		func(k *domain.Kline) { s.enqueueKline(s.entryCh, k, "entry") }, s.handleWsError)
	if err != nil {
		return fmt.Errorf("failed to start entry kline stream: %w", err)
	}
	primaryDone, primaryStop, err := s.exchange.StreamKlines(ctx, s.cfg.Symbol, s.cfg.PrimaryInterval,
		func(k *domain.Kline) { s.enqueueKline(s.primaryCh, k, "primary") }, s.handleWsError)
	if err != nil {
		nonBlockingSend(entryStop, struct{}{})
		return fmt.Errorf("failed to start primary kline stream: %w", err)
	}
	s.logger.Info(ctx, "Kline streams started", map[string]interface{}{
		"symbol": s.cfg.Symbol, "entry": s.cfg.EntryInterval, "primary": s.cfg.PrimaryInterval,
	})

	err = s.dispatch(ctx, entryDone, primaryDone)

	// Shut the streams down before returning.
	nonBlockingSend(entryStop, struct{}{})
	nonBlockingSend(primaryStop, struct{}{})
	s.logger.Info(ctx, "Trading Service stopped.")
	return err
}

// initialize synchronizes clocks, leverage, persisted state, and caches.
func (s *TradingService) initialize(ctx context.Context) error {
	if err := s.exchange.SetServerTime(ctx); err != nil {
		return fmt.Errorf("failed to set server time: %w", err)
	}
	s.logger.Info(ctx, "Server time synchronized")

	if err := s.exchange.SetLeverage(ctx, s.cfg.Symbol, s.cfg.Leverage); err != nil {
		// Not fatal: the account may already be at the target leverage, or the
		// change may be rejected while a position is open.
		s.logger.Warn(ctx, "Failed to set leverage, continuing with account setting", map[string]interface{}{
			"symbol": s.cfg.Symbol, "leverage": s.cfg.Leverage, "error": err.Error(),
		})
	}

	openPos, err := s.posRepo.FindOpenBySymbol(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to query open position: %w", err)
	}
	if openPos != nil {
		s.lifecycle.Restore(openPos)
		s.riskMgr.UpdateOnOpen(ctx, openPos)
		s.logger.Info(ctx, "Restored open position", map[string]interface{}{
			"positionID": openPos.ID, "side": openPos.Side, "entryPrice": openPos.EntryPrice,
			"remaining": openPos.Remaining, "stopLoss": openPos.StopLoss.Price,
		})
	} else {
		s.logger.Info(ctx, "No existing open position found")
	}

	tradesToday, err := s.tradeRepo.CountTodayBySymbol(ctx, s.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to count today's trades: %w", err)
	}
	s.riskMgr.SeedDailyTrades(tradesToday)
	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{"tradesToday": tradesToday})

	entryKlines, err := s.exchange.GetKlines(ctx, s.cfg.Symbol, s.cfg.EntryInterval, maxKlineCacheSize)
	if err != nil {
		return fmt.Errorf("failed to load initial entry klines: %w", err)
	}
	s.entryCache = entryKlines

	primaryKlines, err := s.exchange.GetKlines(ctx, s.cfg.Symbol, s.cfg.PrimaryInterval, maxKlineCacheSize)
	if err != nil {
		return fmt.Errorf("failed to load initial primary klines: %w", err)
	}
	s.primaryCache = primaryKlines
	s.logger.Info(ctx, "Loaded initial klines", map[string]interface{}{
		"entry": len(s.entryCache), "primary": len(s.primaryCache),
	})

	// Seed the trend context so the first entries are not gated on a
	// context that never existed.
	s.refreshTrendContext(ctx)
	return nil
}

// dispatch is the single-writer loop. Every state mutation happens here.
func (s *TradingService) dispatch(ctx context.Context, entryDone, primaryDone chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Dispatcher stopping on context cancellation")
			return nil
		case <-entryDone:
			return fmt.Errorf("entry kline stream stopped unexpectedly")
		case <-primaryDone:
			return fmt.Errorf("primary kline stream stopped unexpectedly")
		case k := <-s.entryCh:
			s.onEntryKline(ctx, k)
		case k := <-s.primaryCh:
			s.onPrimaryKline(ctx, k)
		case now := <-s.sweepCh:
			if purged := s.retest.Sweep(now); purged > 0 {
				s.logger.Debug(ctx, "Swept expired retest zones", map[string]interface{}{"purged": purged})
			}
		case <-s.resetCh:
			s.reportDailyPerformance(ctx)
			s.riskMgr.ResetDailyStats(ctx)
			s.logger.Info(ctx, "Daily risk statistics reset")
		}
	}
}

// enqueueKline pushes a final kline into the dispatcher queue, dropping it
// when the queue is saturated. Dropping is preferable to blocking the
// websocket reader.
func (s *TradingService) enqueueKline(ch chan *domain.Kline, k *domain.Kline, stream string) {
	if !k.IsFinal {
		return
	}
	select {
	case ch <- k:
	default:
		s.logger.Warn(context.Background(), "Event queue full, dropping kline", map[string]interface{}{
			"stream": stream, "closeTime": k.CloseTime,
		})
	}
}

// handleWsError handles errors reported by the WebSocket streams. Reconnects
// are handled inside the adapter; this is observational.
func (s *TradingService) handleWsError(err error) {
	s.logger.Error(context.Background(), err, "WebSocket stream error reported")
}

// onPrimaryKline refreshes the trend context on each PRIMARY close. A failed
// refresh retains the previous context rather than resetting to neutral.
func (s *TradingService) onPrimaryKline(ctx context.Context, k *domain.Kline) {
	s.primaryCache = appendBounded(s.primaryCache, k)
	s.refreshTrendContext(ctx)
}

// onEntryKline is the core decision path, run once per closed entry candle.
func (s *TradingService) onEntryKline(ctx context.Context, k *domain.Kline) {
	s.entryCache = appendBounded(s.entryCache, k)
	s.flipGuard.OnCandle()
	price := k.Close

	// An open position is managed before anything else; no new entries are
	// evaluated while it exists.
	if s.lifecycle.Current() != nil {
		if err := s.lifecycle.OnPrice(ctx, price); err != nil {
			s.logger.Error(ctx, err, "Position management failed on price update")
		}
		return
	}

	// A pending retest zone takes priority over fresh signal generation: the
	// deferred signal either re-enters calmly or keeps waiting.
	if zone := s.retest.PendingZone(s.cfg.Symbol, time.Now().UTC()); zone != nil {
		s.checkRetestEntry(ctx, price)
		return
	}

	sig := s.buildSignal(ctx, price)
	if sig == nil || sig.Direction == domain.Hold {
		return
	}
	s.tryEnter(ctx, sig, price, false)
}

// checkRetestEntry re-evaluates a pending zone against the current price.
func (s *TradingService) checkRetestEntry(ctx context.Context, price float64) {
	currentVolume := s.entryCache[len(s.entryCache)-1].Volume
	avgVolume, _ := indicators.AverageVolume(s.entryCache, s.snapshotVolumeLookback())

	sig, reason := s.retest.CheckRetest(s.cfg.Symbol, price, currentVolume, avgVolume, s.structureIntact, time.Now().UTC())
	if sig == nil {
		if reason != "" {
			s.logger.Debug(ctx, "Retest zone not triggered", map[string]interface{}{"reason": reason})
		}
		return
	}
	s.logger.Info(ctx, "Retest zone triggered, re-evaluating deferred signal", map[string]interface{}{
		"direction": sig.Direction, "price": price,
	})
	s.tryEnter(ctx, sig, price, true)
}

// structureIntact reports whether the market structure backing a deferred
// signal still holds: price must not have closed through the slow EMA
// against the trade direction.
func (s *TradingService) structureIntact(direction domain.Direction) bool {
	ind := s.snapshots.TimeframeIndicators(domain.RoleEntry, s.entryCache)
	if !ind.HasData {
		return false
	}
	if direction == domain.Short {
		return ind.Close < ind.EMASlow
	}
	return ind.Close > ind.EMASlow
}

// buildSignal fuses indicators into a trade proposal, or nil when no setup
// exists. Order of gates: direction, confidence, alignment, confirmation,
// flip guard hygiene.
func (s *TradingService) buildSignal(ctx context.Context, price float64) *domain.Signal {
	book, err := s.exchange.GetOrderBook(ctx, s.cfg.Symbol, s.snapshots.BookDepth())
	if err != nil {
		// Imbalance simply drops out of the snapshot.
		s.logger.Debug(ctx, "Order book fetch failed, scoring without imbalance", map[string]interface{}{"error": err.Error()})
		book = nil
	}
	snap := s.snapshots.Build(s.entryCache, book)
	if snap == nil {
		return nil
	}

	direction := proposeDirection(snap, price)
	if direction == domain.Hold {
		return nil
	}

	// Cross-timeframe alignment over the cached and fetched frames. Computed
	// before scoring so its score participates as a factor.
	perTF := s.collectTimeframes(ctx)
	alignRes := s.alignGate.CalculateAlignment(direction, price, perTF)
	snap.TFAlignment = &domain.FactorReading{Value: float64(alignRes.Score)}
	if !alignRes.Aligned {
		s.metrics.EntriesBlocked.WithLabelValues("alignment").Inc()
		s.logger.Debug(ctx, "Signal rejected by timeframe alignment", map[string]interface{}{
			"direction": direction, "score": alignRes.Score,
		})
		return nil
	}

	breakdown := s.scorer.Score(direction, snap)

	// Independent trend confirmation; total data loss fails closed.
	conf := s.alignGate.ConfirmTrend(ctx, s.logger, s.timeframeProvider(), direction)
	if !conf.IsAligned {
		s.metrics.EntriesBlocked.WithLabelValues("trendConfirmation").Inc()
		s.logger.Debug(ctx, "Signal rejected by trend confirmation", map[string]interface{}{
			"direction": direction, "score": conf.Score,
		})
		return nil
	}

	var rsi *float64
	if snap.RSI != nil {
		rsi = &snap.RSI.Value
	}
	if guard := s.flipGuard.ShouldBlock(direction, breakdown.Confidence, rsi, s.entryCache, time.Now().UTC()); guard.Blocked {
		s.metrics.EntriesBlocked.WithLabelValues("flipGuard").Inc()
		s.logger.Info(ctx, "Signal suppressed by flip guard", map[string]interface{}{"reason": guard.Reason})
		return nil
	}

	sig := s.composeSignal(direction, price, breakdown.Confidence, snap)
	if sig == nil {
		return nil
	}
	if err := sig.Validate(); err != nil {
		s.logger.Error(ctx, err, "Composed signal failed validation")
		return nil
	}
	s.logger.Info(ctx, "Signal built", map[string]interface{}{
		"direction": sig.Direction, "confidence": sig.Confidence, "stopLoss": sig.StopLoss,
		"alignScore": alignRes.Score, "confirmScore": conf.Score,
	})
	return sig
}

// composeSignal derives the stop and the laddered take-profit plan from the
// ATR so the geometry scales with volatility.
func (s *TradingService) composeSignal(direction domain.Direction, price, confidence float64, snap *domain.IndicatorSnapshot) *domain.Signal {
	if snap.ATR == nil || snap.ATR.Value <= 0 {
		s.logger.Debug(context.Background(), "No ATR available, cannot size stop distance")
		return nil
	}
	atr := snap.ATR.Value
	stopDistance := atr * stopATRMultiple

	var stop float64
	var tps []domain.TakeProfitLevel
	if direction == domain.Short {
		stop = price + stopDistance
		tps = []domain.TakeProfitLevel{
			{Level: 1, Price: price - stopDistance, SizePercent: 50},
			{Level: 2, Price: price - 2*stopDistance, SizePercent: 30},
			{Level: 3, Price: price - 3*stopDistance, SizePercent: 20},
		}
	} else {
		stop = price - stopDistance
		tps = []domain.TakeProfitLevel{
			{Level: 1, Price: price + stopDistance, SizePercent: 50},
			{Level: 2, Price: price + 2*stopDistance, SizePercent: 30},
			{Level: 3, Price: price + 3*stopDistance, SizePercent: 20},
		}
	}

	return &domain.Signal{
		Direction:   direction,
		Price:       price,
		StopLoss:    stop,
		TakeProfits: tps,
		Confidence:  confidence,
		Reason:      fmt.Sprintf("ema/rsi fusion, atr %.4f", atr),
		Timestamp:   time.Now().UTC(),
	}
}

// tryEnter runs the entry orchestrator and opens the position on approval.
// fromRetest marks signals resurrected by a satisfied retest zone.
func (s *TradingService) tryEnter(ctx context.Context, sig *domain.Signal, price float64, fromRetest bool) {
	balance, err := s.exchange.GetAccountBalance(ctx, quoteAsset)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch balance, skipping entry")
		return
	}
	if balance < s.cfg.MinAvailableBalance {
		s.metrics.EntriesBlocked.WithLabelValues("balance").Inc()
		s.logger.Warn(ctx, "Balance below minimum, skipping entry", map[string]interface{}{
			"balance": balance, "minimum": s.cfg.MinAvailableBalance,
		})
		return
	}

	currentVolume := s.entryCache[len(s.entryCache)-1].Volume
	avgVolume, _ := indicators.AverageVolume(s.entryCache, s.snapshotVolumeLookback())
	flat := indicators.DetectFlatMarket(s.entryCache, s.snapshotVolumeLookback(), flatRangePercent)

	decision, err := s.orch.Evaluate(ctx, entry.Input{
		Signal:        sig,
		Balance:       balance,
		OpenPositions: s.lifecycle.OpenCount(),
		Trend:         s.trendCtx,
		Flat:          flat,
		Candles:       s.entryCache,
		CurrentVolume: currentVolume,
		AvgVolume:     avgVolume,
		Now:           time.Now().UTC(),
		FromRetest:    fromRetest,
	})
	if err != nil {
		s.logger.Error(ctx, err, "Entry evaluation failed")
		return
	}

	switch decision.Verdict {
	case entry.VerdictEnter:
		if err := s.lifecycle.Open(ctx, sig, decision.Quantity, price); err != nil {
			s.logger.Error(ctx, err, "Failed to open position")
			return
		}
		// Recorded only for executed signals; evaluations never arm the guard.
		s.flipGuard.RecordSignal(sig.Direction, time.Now().UTC())
	case entry.VerdictDefer:
		s.logger.Info(ctx, "Signal deferred", map[string]interface{}{"reason": decision.Reason})
	default:
		s.logger.Debug(ctx, "Entry blocked", map[string]interface{}{"stage": decision.Stage, "reason": decision.Reason})
	}
}

// reportDailyPerformance logs a summary of the most recent trades at the
// daily rollover, before the risk statistics reset.
func (s *TradingService) reportDailyPerformance(ctx context.Context) {
	trades, err := s.tradeRepo.FindBySymbol(ctx, s.cfg.Symbol, dailyReportTradeLimit)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load trades for daily report", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(trades) == 0 {
		return
	}
	sum := analytics.Summarize(trades)
	s.logger.Info(ctx, "Daily performance report", map[string]interface{}{
		"trades": sum.TotalTrades, "winRate": sum.WinRate, "totalPnl": sum.TotalPNL,
		"profitFactor": sum.ProfitFactor, "avgDuration": sum.AverageDuration.String(),
	})
}

// refreshTrendContext recomputes the cross-timeframe bias. Any fetch failure
// keeps the previous context: a stale bias beats a fabricated neutral one.
func (s *TradingService) refreshTrendContext(ctx context.Context) {
	trend1, err1 := s.exchange.GetKlines(ctx, s.cfg.Symbol, s.cfg.Trend1Interval, maxKlineCacheSize/2)
	trend2, err2 := s.exchange.GetKlines(ctx, s.cfg.Symbol, s.cfg.Trend2Interval, maxKlineCacheSize/2)
	if err1 != nil || err2 != nil {
		s.logger.Warn(ctx, "Trend context refresh failed, retaining previous context", map[string]interface{}{
			"trend1Err": errString(err1), "trend2Err": errString(err2), "bias": s.trendCtx.Bias,
		})
		return
	}

	primary := s.snapshots.TimeframeIndicators(domain.RolePrimary, s.primaryCache)
	t1 := s.snapshots.TimeframeIndicators(domain.RoleTrend1, trend1)
	t2 := s.snapshots.TimeframeIndicators(domain.RoleTrend2, trend2)
	if !primary.HasData || !t1.HasData || !t2.HasData {
		s.logger.Warn(ctx, "Trend context refresh incomplete, retaining previous context", map[string]interface{}{"bias": s.trendCtx.Bias})
		return
	}

	bullish, bearish := 0, 0
	for _, ind := range []domain.TimeframeIndicators{primary, t1, t2} {
		switch {
		case ind.EMAFast > ind.EMASlow && ind.Close > ind.EMAFast:
			bullish++
		case ind.EMAFast < ind.EMASlow && ind.Close < ind.EMAFast:
			bearish++
		}
	}

	next := domain.NeutralTrendContext()
	next.UpdatedAt = time.Now().UTC()
	switch {
	case bullish == 3:
		next.Bias = domain.BiasBullish
		next.Strength = 1
		next.RestrictedDirections[domain.Short] = true
	case bullish == 2 && bearish == 0:
		next.Bias = domain.BiasBullish
		next.Strength = 2.0 / 3.0
	case bearish == 3:
		next.Bias = domain.BiasBearish
		next.Strength = 1
		next.RestrictedDirections[domain.Long] = true
	case bearish == 2 && bullish == 0:
		next.Bias = domain.BiasBearish
		next.Strength = 2.0 / 3.0
	}

	// Replace wholesale; readers hold the old snapshot safely.
	s.trendCtx = next
	s.logger.Debug(ctx, "Trend context refreshed", map[string]interface{}{
		"bias": next.Bias, "strength": next.Strength,
	})
}

// collectTimeframes assembles the per-role indicators for the alignment gate
// from the local caches and on-demand fetches.
func (s *TradingService) collectTimeframes(ctx context.Context) map[domain.TimeframeRole]domain.TimeframeIndicators {
	out := map[domain.TimeframeRole]domain.TimeframeIndicators{
		domain.RolePrimary: s.snapshots.TimeframeIndicators(domain.RolePrimary, s.primaryCache),
	}
	for role, interval := range map[domain.TimeframeRole]string{
		domain.RoleTrend1: s.cfg.Trend1Interval,
		domain.RoleTrend2: s.cfg.Trend2Interval,
	} {
		klines, err := s.exchange.GetKlines(ctx, s.cfg.Symbol, interval, maxKlineCacheSize/2)
		if err != nil {
			// Missing frames contribute zero alignment weight.
			out[role] = domain.TimeframeIndicators{Role: role}
			continue
		}
		out[role] = s.snapshots.TimeframeIndicators(role, klines)
	}
	return out
}

// timeframeProvider adapts the service to the confirmation step's fetch
// interface. Each call fetches fresh data, independent of the caches.
func (s *TradingService) timeframeProvider() alignment.IndicatorProvider {
	return &tfProvider{svc: s}
}

type tfProvider struct {
	svc *TradingService
}

func (p *tfProvider) TimeframeIndicators(ctx context.Context, role domain.TimeframeRole) (domain.TimeframeIndicators, error) {
	interval := p.svc.intervalFor(role)
	klines, err := p.svc.exchange.GetKlines(ctx, p.svc.cfg.Symbol, interval, maxKlineCacheSize/2)
	if err != nil {
		return domain.TimeframeIndicators{Role: role}, err
	}
	return p.svc.snapshots.TimeframeIndicators(role, klines), nil
}

func (s *TradingService) intervalFor(role domain.TimeframeRole) string {
	switch role {
	case domain.RolePrimary:
		return s.cfg.PrimaryInterval
	case domain.RoleTrend1:
		return s.cfg.Trend1Interval
	case domain.RoleTrend2:
		return s.cfg.Trend2Interval
	case domain.RoleContext:
		return s.cfg.ContextInterval
	default:
		return s.cfg.EntryInterval
	}
}

func (s *TradingService) snapshotVolumeLookback() int {
	return s.snapshots.VolumeLookback()
}

// proposeDirection reads the EMA posture off the snapshot. Both EMAs and a
// price on the right side of the fast EMA are required; anything else is HOLD.
func proposeDirection(snap *domain.IndicatorSnapshot, price float64) domain.Direction {
	if snap.EMAFast == nil || snap.EMASlow == nil {
		return domain.Hold
	}
	fast, slow := snap.EMAFast.Value, snap.EMASlow.Value
	switch {
	case fast > slow && price > fast:
		return domain.Long
	case fast < slow && price < fast:
		return domain.Short
	default:
		return domain.Hold
	}
}

func appendBounded(cache []*domain.Kline, k *domain.Kline) []*domain.Kline {
	cache = append(cache, k)
	if len(cache) > maxKlineCacheSize {
		cache = cache[len(cache)-maxKlineCacheSize:]
	}
	return cache
}

func nonBlockingSend[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
