package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spottrader/internal/api"
	"spottrader/internal/candles"
	"spottrader/internal/engine"
	"spottrader/internal/events"
	"spottrader/internal/market"
	"spottrader/internal/oracle"
	"spottrader/internal/order"
	"spottrader/internal/persistence"
	"spottrader/internal/position"
	tradesignal "spottrader/internal/signal"
	"spottrader/internal/state"
	"spottrader/internal/watchdog"
	"spottrader/pkg/config"
	"spottrader/pkg/db"
	exspot "spottrader/pkg/exchanges/binance/spot"
	marketbinance "spottrader/pkg/market/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		log.Fatalf("policy load failed: %v", err)
	}
	if len(cfg.BinanceSymbols) == 0 {
		log.Fatal("BINANCE_SYMBOLS is empty, nothing to trade")
	}
	log.Printf("starting on port %s, %d symbols, interval %s", cfg.Port, len(cfg.BinanceSymbols), policy.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}
	queries := database.Queries()

	// In-memory state seeded from DB
	stateMgr := state.NewManager(queries)
	if err := stateMgr.Load(ctx); err != nil {
		log.Fatalf("state load failed: %v", err)
	}
	if n := stateMgr.OpenCount(); n > 0 {
		log.Printf("restored %d open positions from db", n)
	}

	// Exchange gateway
	spotClient := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	spotClient.StartTimeSync(ctx)

	// Market data
	store := candles.NewStore(policy.Interval, policy.MaxCandles)
	book := market.NewBook()
	feed := &market.Feed{
		Client:       marketbinance.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet),
		Stream:       marketbinance.NewStreamClient(cfg.BinanceTestnet),
		Store:        store,
		Book:         book,
		Bus:          bus,
		Symbols:      cfg.BinanceSymbols,
		Interval:     policy.Interval,
		TickerWindow: policy.TickerWindow,
		Backfill:     policy.MaxCandles,
	}

	// Trading pipeline
	oracleClient := oracle.NewClient(cfg.OracleBaseURL, cfg.EnableOracle)
	gateway := order.NewGateway(spotClient, queries, stateMgr, bus, policy)
	positions := position.NewManager(policy, stateMgr, queries, gateway)
	evaluator := tradesignal.NewEvaluator(policy)
	wd := watchdog.New(bus, policy.WatchdogStaleAfter(), nil)

	eng := &engine.Engine{
		Policy:        policy,
		Bus:           bus,
		Feed:          feed,
		Store:         store,
		Book:          book,
		State:         stateMgr,
		Evaluator:     evaluator,
		Oracle:        oracleClient,
		Positions:     positions,
		Gateway:       gateway,
		Watchdog:      wd,
		EnableTrading: cfg.EnableTrading,
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("engine start failed: %v", err)
	}
	stateMgr.SetMonitoring(true)
	if !cfg.EnableTrading {
		log.Println("trading disabled, running in observe-only mode")
	}

	// Background sweep for orders the fill polling left pending
	reconciler := &order.Reconciler{
		Exchange: spotClient,
		Queries:  queries,
		State:    stateMgr,
		Bus:      bus,
		Policy:   policy,
	}
	go reconciler.Run(ctx)

	// Candle archive
	writer := persistence.NewCandleWriter(queries, bus, policy.Interval, policy.MaxCandles*4)
	go writer.Run(ctx)

	// API
	server := api.NewServer(cfg, policy, bus, queries, stateMgr, positions, eng)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
	cancel()
	feed.Stop()
}
