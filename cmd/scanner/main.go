package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"intraday-scanner/internal/alerts"
	"intraday-scanner/internal/broker/zerodha"
	"intraday-scanner/internal/engine"
	"intraday-scanner/internal/exit"
	"intraday-scanner/internal/interfaces"
	"intraday-scanner/internal/logger"
	"intraday-scanner/internal/marketdata"
	"intraday-scanner/internal/regime"
	"intraday-scanner/internal/scan"
	"intraday-scanner/internal/session"
	"intraday-scanner/internal/store"
	"intraday-scanner/internal/strategy"
	"intraday-scanner/internal/tradelog"

	"github.com/joho/godotenv"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	_ = godotenv.Load()
	cfg, err := store.LoadConfig("config.yaml")
	must(err)
	must(logger.Init())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer logger.Shutdown(context.Background())

	if v := os.Getenv("SCANNER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		_ = tradelog.CompressOlder(n)
	}

	apiKey := os.Getenv("KITE_API_KEY")
	accessToken := os.Getenv("KITE_ACCESS_TOKEN")
	if apiKey == "" || accessToken == "" {
		log.Fatal("KITE_API_KEY and KITE_ACCESS_TOKEN must be set")
	}
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(accessToken)

	mapper, missing, err := zerodha.LoadInstrumentMappings(kc, cfg.Exchange, cfg.Universe)
	must(err)
	if len(missing) > 0 {
		logger.Warn(ctx, "Symbols without instrument tokens dropped", "symbols", missing)
		cfg.Universe = withoutSymbols(cfg.Universe, missing)
	}

	clock, err := session.NewClock(cfg)
	must(err)

	backoff := make([]time.Duration, 0, len(cfg.Feed.BackoffSeconds))
	for _, s := range cfg.Feed.BackoffSeconds {
		backoff = append(backoff, time.Duration(s)*time.Second)
	}
	feed := zerodha.NewFeed(apiKey, accessToken, mapper, zerodha.FeedConfig{
		Backoff:          backoff,
		MaxTokensPerConn: cfg.Feed.MaxTokensPerConn,
	})
	fetcher := zerodha.NewHistoricalFetcher(kc, mapper, zerodha.HistoricalConfig{
		LookbackDays:   cfg.Historical.LookbackDays,
		RequestsPerSec: cfg.Historical.RequestsPerSec,
		MinCandles:     cfg.Historical.MinCandles,
	})

	market := marketdata.NewStore()
	trades := store.NewPaperTradeStore()
	breaker := scan.NewCircuitBreaker(cfg.Breaker.StopLossLimit)
	dispatcher := alerts.NewDispatcher(alerts.LogSender{}, 256)

	strategies := []interfaces.Strategy{
		strategy.NewGapAndGo(strategy.DefaultGapAndGoConfig()),
		strategy.NewVolumeBreakout(strategy.DefaultVolumeBreakoutConfig()),
	}
	pipeline := scan.NewPipeline().
		Append(scan.NewBreakerGate(breaker), false).
		Append(scan.NewCandidateScanStage(strategies), true).
		Append(scan.NewDedupeStage(), true).
		Append(scan.NewScoreRankStage(cfg.Scoring.MaxRankedSignals), true).
		Append(scan.NewRiskSizingStage(cfg.Risk.Capital, cfg.Risk.PerTradeRiskPct, cfg.Risk.MaxPositions), true).
		Append(scan.NewPublishStage(trades, dispatcher), true)

	monitor := exit.NewMonitor(exit.Config{
		BreakevenPct:   cfg.Exits.BreakevenPct,
		TrailingPct:    cfg.Exits.TrailingPct,
		TrailingFactor: cfg.Exits.TrailingFactor,
	}, market, trades, dispatcher, breaker, clock)

	eng := engine.New(cfg, engine.Deps{
		Market:     market,
		Trades:     trades,
		Feed:       feed,
		Refs:       fetcher,
		Pipeline:   pipeline,
		Breaker:    breaker,
		Monitor:    monitor,
		Classifier: regime.NewClassifier(),
		Dispatcher: dispatcher,
		Clock:      clock,
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info(ctx, "Shutdown signal received")
		eng.Stop()
	}()

	if cfg.Mode == "DRY_RUN" {
		log.Println(">> DRY_RUN mode")
	}
	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}

func withoutSymbols(universe, drop []string) []string {
	dropped := make(map[string]bool, len(drop))
	for _, s := range drop {
		dropped[s] = true
	}
	kept := make([]string, 0, len(universe))
	for _, s := range universe {
		if !dropped[s] {
			kept = append(kept, s)
		}
	}
	return kept
}
