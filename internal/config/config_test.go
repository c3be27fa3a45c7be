package config_test

import (
	"testing"
	"time"

	"github.com/JustinMoon-exe/Flashbook/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := config.FromEnv()

	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.RedisURL)
	}
	if cfg.ActionInterval != 500*time.Millisecond {
		t.Errorf("action interval = %v", cfg.ActionInterval)
	}
	if cfg.OverrideTTL != 30*time.Second {
		t.Errorf("override ttl = %v", cfg.OverrideTTL)
	}
	if cfg.TradeCacheSize != 20 {
		t.Errorf("trade cache size = %d", cfg.TradeCacheSize)
	}
	if cfg.DedupTrades {
		t.Error("dedup must default off")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SIM_ACTION_INTERVAL", "250ms")
	t.Setenv("SIM_DEDUP_TRADES", "true")
	t.Setenv("SIM_TRADE_CACHE_SIZE", "50")

	cfg := config.FromEnv()
	if cfg.ActionInterval != 250*time.Millisecond {
		t.Errorf("action interval = %v, want 250ms", cfg.ActionInterval)
	}
	if !cfg.DedupTrades {
		t.Error("dedup not enabled")
	}
	if cfg.TradeCacheSize != 50 {
		t.Errorf("trade cache size = %d, want 50", cfg.TradeCacheSize)
	}
}

func TestFromEnv_IgnoresMalformedValues(t *testing.T) {
	t.Setenv("SIM_ACTION_INTERVAL", "soon")
	t.Setenv("SIM_TRADE_CACHE_SIZE", "many")

	cfg := config.FromEnv()
	if cfg.ActionInterval != 500*time.Millisecond {
		t.Errorf("action interval = %v, want the default", cfg.ActionInterval)
	}
	if cfg.TradeCacheSize != 20 {
		t.Errorf("trade cache size = %d, want the default", cfg.TradeCacheSize)
	}
}

func TestDefaultRoster(t *testing.T) {
	roster := config.DefaultRoster()
	if len(roster["ABC"]) != 3 || len(roster["XYZ"]) != 4 {
		t.Fatalf("roster sizes = %d/%d, want 3/4", len(roster["ABC"]), len(roster["XYZ"]))
	}
	for sym, specs := range roster {
		for i, spec := range specs {
			if !config.KnownStrategy(spec.Strategy) {
				t.Errorf("%s[%d]: unknown strategy %q", sym, i, spec.Strategy)
			}
			if spec.Bankroll.Sign() <= 0 {
				t.Errorf("%s[%d]: non-positive bankroll", sym, i)
			}
		}
	}
}

func TestKnownStrategy(t *testing.T) {
	for _, name := range []string{config.StrategyNoise, config.StrategyMarketMaker, config.StrategyMomentum} {
		if !config.KnownStrategy(name) {
			t.Errorf("KnownStrategy(%q) = false", name)
		}
	}
	if config.KnownStrategy("hodl") {
		t.Error(`KnownStrategy("hodl") = true`)
	}
}
