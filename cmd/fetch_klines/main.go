// Command fetch_klines downloads historical candles and stores them as CSV,
// mainly for offline tuning of the engine parameters.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"fusionbot/config"
	"fusionbot/internal/adapters/binanceclient"
	"fusionbot/internal/adapters/logger"
	"fusionbot/internal/utils"
)

func main() {
	symbol := flag.String("symbol", "ETHUSDT", "Trading symbol to fetch")
	interval := flag.String("interval", "1m", "Kline interval")
	months := flag.Int("months", 3, "How many months of history to fetch")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(logger.ParseLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	ctx := context.Background()

	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now()
	start := end.AddDate(0, -*months, 0)

	appLogger.Info(ctx, "Fetching klines", map[string]interface{}{
		"symbol": *symbol, "interval": *interval, "from": start, "to": end,
	})
	klines, err := binanceClient.GetKlinesRange(ctx, *symbol, *interval, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching klines")
		log.Fatalf("Error fetching klines: %v", err)
	}
	appLogger.Info(ctx, "Fetched klines", map[string]interface{}{"count": len(klines)})

	filename := fmt.Sprintf("data/%s_%s_%s_to_%s.csv", *symbol, *interval, start.Format("20060102"), end.Format("20060102"))
	if err := utils.WriteKlinesToCSV(klines, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved klines", map[string]interface{}{"filename": filename})
}
