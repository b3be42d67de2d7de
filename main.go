package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fusionbot/config"
	"fusionbot/internal/adapters/binanceclient"
	"fusionbot/internal/adapters/logger"
	"fusionbot/internal/adapters/notify"
	"fusionbot/internal/adapters/sqlite"
	"fusionbot/internal/app"
	"fusionbot/internal/engine/entry"
	"fusionbot/internal/engine/exits"
	"fusionbot/internal/engine/lifecycle"
	"fusionbot/internal/engine/protection"
	"fusionbot/internal/indicators"
	"fusionbot/internal/metrics"
	"fusionbot/internal/ports"
	"fusionbot/internal/risk"
	"fusionbot/internal/signal/alignment"
	"fusionbot/internal/signal/flipguard"
	"fusionbot/internal/signal/retest"
	"fusionbot/internal/signal/scorer"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	engineCfg, err := config.LoadEngineConfig(cfg.EngineConfigPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load engine configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()
	appLogger.Info(ctx, "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(ctx, "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize Notifier
	var notifier ports.Notifier
	if cfg.TelegramBotToken != "" {
		notifier, err = notify.NewTelegram(notify.Config{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
			ProxyURL: cfg.TelegramProxyURL,
			Logger:   appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
			log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
		}
		appLogger.Info(ctx, "Telegram notifier initialized")
	} else {
		notifier = notify.NewNoop()
		appLogger.Info(ctx, "Telegram not configured, notifications disabled")
	}

	// 6. Initialize Metrics
	m := metrics.Nop()
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(ctx, err, "Metrics server stopped")
			}
		}()
		appLogger.Info(ctx, "Metrics server listening", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 7. Initialize Decision Components
	confScorer, err := scorer.New(engineCfg.Scorer)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize confidence scorer: %v", err)
	}
	alignGate, err := alignment.New(engineCfg.Alignment)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize alignment gate: %v", err)
	}
	flipGuard, err := flipguard.New(engineCfg.FlipGuard)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize flip guard: %v", err)
	}
	retestGate, err := retest.New(engineCfg.Retest)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize retest gate: %v", err)
	}
	// Leverage and step size are account-level settings; the tuning file may
	// override them but normally inherits the environment.
	if engineCfg.Risk.Leverage == 0 {
		engineCfg.Risk.Leverage = cfg.Leverage
	}
	if engineCfg.Risk.QtyStep == 0 {
		engineCfg.Risk.QtyStep = cfg.QtyStep
	}
	// The protective-order step must match the entry step exactly.
	engineCfg.Protection.QtyStep = cfg.QtyStep
	riskMgr, err := risk.NewManager(engineCfg.Risk)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}
	verifier, err := protection.New(engineCfg.Protection, appLogger, binanceClient, notifier, m, cfg.Symbol)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize protection verifier: %v", err)
	}
	machine, err := exits.New(engineCfg.Exits)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize exit state machine: %v", err)
	}
	lifecycleMgr, err := lifecycle.NewManager(lifecycle.Config{
		Symbol:         cfg.Symbol,
		Leverage:       cfg.Leverage,
		QtyStep:        cfg.QtyStep,
		MaxOpen:        engineCfg.Risk.MaxOpenPositions,
		PricePrecision: engineCfg.Protection.PricePrecision,
	}, appLogger, binanceClient, repo, repo, notifier, verifier, machine, riskMgr, m)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize lifecycle manager: %v", err)
	}

	var filters []entry.SoftFilter
	if !engineCfg.Filters.DisableFunding {
		filters = append(filters, &entry.FundingRateFilter{
			Market:     binanceClient,
			Symbol:     cfg.Symbol,
			MaxAbsRate: engineCfg.Filters.FundingMaxAbsRate,
		})
	}
	if !engineCfg.Filters.DisableCorrelation {
		filters = append(filters, &entry.BTCCorrelationFilter{
			Market:       binanceClient,
			BTCSymbol:    engineCfg.Filters.BTCSymbol,
			Interval:     engineCfg.Filters.BTCInterval,
			Lookback:     engineCfg.Filters.BTCLookback,
			MaxAdversePC: engineCfg.Filters.BTCMaxAdversePct,
		})
	}
	killSwitch := entry.NewKillSwitch(cfg.KillSwitchPath)
	orchestrator, err := entry.New(appLogger, killSwitch, riskMgr, retestGate, m, cfg.Symbol, filters...)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize entry orchestrator: %v", err)
	}
	appLogger.Info(ctx, "Decision components initialized")

	// 8. Initialize Application Service
	tradingService, err := app.NewTradingService(cfg, app.Deps{
		Logger:    appLogger,
		Exchange:  binanceClient,
		PosRepo:   repo,
		TradeRepo: repo,
		Scorer:    confScorer,
		AlignGate: alignGate,
		FlipGuard: flipGuard,
		Retest:    retestGate,
		Orch:      orchestrator,
		Lifecycle: lifecycleMgr,
		RiskMgr:   riskMgr,
		Snapshots: indicators.NewSnapshotBuilder(indicators.DefaultSnapshotConfig()),
		Metrics:   m,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 9. Start the Service
	if err := tradingService.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
