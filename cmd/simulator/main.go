package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/JustinMoon-exe/Flashbook/internal/agent"
	"github.com/JustinMoon-exe/Flashbook/internal/bus"
	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/listener"
	"github.com/JustinMoon-exe/Flashbook/internal/metrics"
	"github.com/JustinMoon-exe/Flashbook/internal/risk"
	"github.com/JustinMoon-exe/Flashbook/internal/sim"
	"github.com/JustinMoon-exe/Flashbook/internal/state"
	"github.com/JustinMoon-exe/Flashbook/internal/venue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.FromEnv()

	// --- Redis (the message bus) ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "err", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		pingCancel()
		slog.Error("redis connection failed", "url", cfg.RedisURL, "err", err)
		os.Exit(1)
	}
	pingCancel()
	slog.Info("connected to redis", "url", cfg.RedisURL)

	// --- Shared state ---
	cache := state.NewMarketCache(cfg.TradeCacheSize)
	overrides := state.NewOverrideTable()
	registry := state.NewOrderRegistry()
	stats := state.NewExchangeStats()
	limiter := risk.NewLimiter(cfg.Params.MaxPosition)
	publisher := bus.NewPublisher(rdb)
	venueClient := venue.NewClient(cfg.VenueURL)

	deps := agent.Deps{
		Registry:    registry,
		Market:      cache,
		Overrides:   overrides,
		Limiter:     limiter,
		Venue:       venueClient,
		Bus:         publisher,
		Params:      cfg.Params,
		MinBankroll: cfg.MinBankroll,
	}

	// --- Agent fleet ---
	// Symbols are sorted so agent ids are stable across restarts.
	symbols := make([]string, 0, len(cfg.Agents))
	for symbol := range cfg.Agents {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var agents []*agent.Agent
	agentMap := make(map[string]*agent.Agent)
	n := 1
	for _, symbol := range symbols {
		for _, spec := range cfg.Agents[symbol] {
			id := fmt.Sprintf("Agent_%d", n)
			ag := agent.New(id, symbol, spec, deps, nil)
			agents = append(agents, ag)
			agentMap[id] = ag
			n++
		}
	}
	if len(agents) == 0 {
		slog.Error("no agents configured")
		os.Exit(1)
	}
	slog.Info("agent fleet created", "agents", len(agents), "symbols", symbols)

	// --- Long-lived tasks ---
	gate := sim.NewGate(false)
	marketListener := listener.NewMarketListener(rdb, cache, registry, stats, agentMap, cfg.DedupTrades)
	controlListener := listener.NewControlListener(rdb, gate, agentMap, cache, overrides, registry, stats, cfg.Params, cfg.OverrideTTL)
	loop := sim.NewLoop(agents, gate, cfg.ActionInterval)
	statsPublisher := sim.NewStatsPublisher(agents, cache, stats, publisher, gate, cfg.StatusInterval, cfg.StatsInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn(ctx)
			slog.Info("task exited", "task", name, "err", err)
		}()
	}
	run("market-listener", marketListener.Run)
	run("control-listener", controlListener.Run)
	run("simulation-loop", loop.Run)
	run("stats-publisher", statsPublisher.Run)

	// --- Ops HTTP server ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"flashbook-simulator"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         cfg.OpsAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server error", "err", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down simulator...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		slog.Warn("timeout waiting for tasks to unwind")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("ops server shutdown error", "err", err)
	}
	fmt.Println("simulator stopped")
}
