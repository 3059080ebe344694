// Package main provides the entry point for the spot-trading control plane.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/spotctl/internal/api"
	"github.com/eddiefleurent/spotctl/internal/backtest"
	"github.com/eddiefleurent/spotctl/internal/broker"
	"github.com/eddiefleurent/spotctl/internal/config"
	"github.com/eddiefleurent/spotctl/internal/executor"
	"github.com/eddiefleurent/spotctl/internal/features"
	"github.com/eddiefleurent/spotctl/internal/notify"
	"github.com/eddiefleurent/spotctl/internal/orchestrator"
	"github.com/eddiefleurent/spotctl/internal/proposal"
	"github.com/eddiefleurent/spotctl/internal/reconcile"
	"github.com/eddiefleurent/spotctl/internal/risk"
	"github.com/eddiefleurent/spotctl/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	envPath := os.Getenv("ENV_FILE")
	cfg, err := config.Load(envPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[spotctl] ", log.LstdFlags)
	logger.Printf("Starting control plane (trading_enabled=%v, quant_enabled=%v, symbols=%v)",
		cfg.Trading.TradingEnabled, cfg.Trading.QuantEnabled, cfg.Trading.Symbols)
	if !cfg.Trading.TradingEnabled {
		logger.Println("TRADING DISABLED — orders will not be placed until the kill switch is flipped")
	}

	apiLogger := logrus.New()
	apiLogger.SetOutput(os.Stdout)
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		apiLogger.SetLevel(lvl)
	} else {
		apiLogger.SetLevel(logrus.InfoLevel)
		apiLogger.WithError(err).Warn("invalid LOG_LEVEL; defaulting to info")
	}

	brokerClient := broker.NewClient(broker.Config{
		BaseURL:     cfg.Broker.BaseURL,
		ProxyURL:    cfg.Broker.ProxyURL,
		ProxySecret: cfg.Broker.ProxySecret,
		APIKey:      cfg.Broker.APIKey,
		APISecret:   cfg.Broker.APISecret,
	})
	circuitBroker := broker.NewCircuitBreakerBroker(brokerClient)

	st, err := store.New(cfg.Storage.Path)
	if err != nil {
		logger.Printf("Failed to initialize store: %v", err)
		return 1
	}

	pipeline := features.NewPipeline(features.Config{
		Broker:           circuitBroker,
		Store:            st,
		Symbols:          cfg.Trading.Symbols,
		Interval:         cfg.Trading.Interval,
		EntropyThreshold: cfg.Risk.EntropyThreshold,
		CacheCapacity:    cfg.Cache.Capacity,
		CacheTTL:         cfg.Cache.TTL,
	})

	gate := risk.NewGate(st, circuitBroker, risk.Limits{
		MinPositionUSD:         cfg.Risk.MinPositionUSD,
		MaxPositionUSD:         cfg.Risk.MaxPositionUSD,
		MaxDailyLossUSD:        cfg.Risk.MaxDailyLossUSD,
		MaxDrawdownUSD:         cfg.Risk.MaxDrawdownUSD,
		MaxOpenPositions:       cfg.Risk.MaxOpenPositions,
		MaxPositionsPerSymbol:  cfg.Risk.MaxPositionsPerSymbol,
		MinAccountBalanceUSD:   cfg.Risk.MinAccountBalanceUSD,
		MaxAccountUtilization:  cfg.Risk.MaxAccountUtilization,
		AutoApprovalThreshold:  cfg.Risk.AutoApprovalThreshold,
		EntropyThreshold:       cfg.Risk.EntropyThreshold,
		QuantSizeToleranceMult: cfg.Risk.QuantSizeToleranceMult,
		QuantEnabled:           cfg.Risk.QuantEnabled,
	})

	engine := proposal.NewEngine(st, gate)
	exec := executor.New(circuitBroker, st, engine, logger)
	exec.SetTickSizes(cfg.Trading.TickSizes, cfg.Trading.StepSizes)

	notifier := notify.NewWebhookNotifier(os.Getenv("NOTIFY_WEBHOOK_URL"), logger)
	reconciler := reconcile.New(circuitBroker, st, notifier, logger)
	backtester := backtest.New(st)
	switches := orchestrator.NewSwitches(cfg.Trading.TradingEnabled, cfg.Trading.QuantEnabled)

	orch := orchestrator.New(orchestrator.Config{
		Broker:     circuitBroker,
		Store:      st,
		Pipeline:   pipeline,
		Gate:       gate,
		Engine:     engine,
		Executor:   exec,
		Reconciler: reconciler,
		Notifier:   notifier,
		Switches:   switches,
		Symbols:    cfg.Trading.Symbols,
		Signal: orchestrator.SignalThresholds{
			BuyRSIMax:        cfg.Signal.BuyRSIMax,
			BuyMACDHistMin:   cfg.Signal.BuyMACDHistMin,
			BuyADXMin:        cfg.Signal.BuyADXMin,
			BuyEntropyMin:    cfg.Signal.BuyEntropyMin,
			SellRSIMin:       cfg.Signal.SellRSIMin,
			SellMACDHistMax:  cfg.Signal.SellMACDHistMax,
			MaxOpenPositions: cfg.Signal.MaxOpenPositions,
			Cooldown:         time.Duration(cfg.Signal.CooldownMinutes) * time.Minute,
		},
		Interval: cfg.Trading.Interval,
		FastLoop: cfg.Trading.FastLoop,
		MainLoop: cfg.Trading.MainLoop,
		Logger:   logger,
	})

	apiServer := api.NewServer(api.Config{
		Addr:          cfg.API.Addr,
		SharedSecret:  cfg.API.SharedSecret,
		Store:         st,
		Broker:        circuitBroker,
		Engine:        engine,
		Executor:      exec,
		Reconciler:    reconciler,
		Backtester:    backtester,
		Switches:      switches,
		DailyReporter: orch,
		PresetPath:    os.Getenv("BACKTEST_PRESET_PATH"),
		Logger:        apiLogger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("Shutdown signal received, stopping control plane...")
		orch.Stop()
		cancel()
	}()

	go func() {
		logger.Printf("Operator API listening on %s", cfg.API.Addr)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Printf("Operator API error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("Error shutting down operator API: %v", err)
		}
	}()

	logger.Println("Verifying broker connection...")
	if account, err := circuitBroker.GetAccount(); err != nil {
		logger.Printf("Warning: broker health check failed: %v (continuing — the fast/main loops will retry)", err)
	} else {
		logger.Printf("Connected to broker; %d balances visible", len(account.Balances))
	}

	if err := orch.Run(ctx); err != nil {
		logger.Printf("Orchestrator exited with error: %v", err)
		return 1
	}

	logger.Println("Control plane stopped")
	return 0
}
