// Package config holds the runtime configuration for the simulator:
// connection endpoints, task cadences, the static agent roster, and the
// per-strategy tuning tables.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Redis channels shared with the venue and the dashboard services.
const (
	BBOChannelPattern    = "marketdata:bbo:*"
	TradeChannel         = "trades:executed"
	AgentActionChannel   = "agent:actions"
	AgentStatusChannel   = "agent:status"
	ExchangeStatsChannel = "exchange:stats"
	ControlChannel       = "simulator:control"
	ShockChannel         = "simulator:shock"
)

// AgentSpec is one entry of the static roster: the configuration an
// agent is created with and restored to on reset.
type AgentSpec struct {
	Strategy string
	Risk     float64
	Bankroll decimal.Decimal
}

// Strategies recognised by the roster and control commands.
const (
	StrategyNoise       = "noise"
	StrategyMarketMaker = "market_maker"
	StrategyMomentum    = "momentum"
)

// StrategyParams bundles the tuning values consumed by the decision
// functions. Per-symbol maps fall back to the Default* fields for
// symbols they do not name.
type StrategyParams struct {
	Tick decimal.Decimal // minimum price increment

	// Symbol defaults used when no quote exists yet.
	DefaultMid  map[string]decimal.Decimal
	FallbackMid decimal.Decimal
	MaxPosition int64 // global absolute position limit, all strategies

	// Market maker.
	MMSpread         map[string]decimal.Decimal
	MMDefaultSpread  decimal.Decimal
	MMBaseQty        map[string]int64
	MMDefaultBaseQty int64
	MMRiskPct        decimal.Decimal // max fraction of bankroll per quoted side

	// Momentum.
	MomentumWindow    int
	MomentumThreshold decimal.Decimal
	MomentumBaseQty   int64
	MomentumRiskPct   decimal.Decimal

	// Noise.
	NoiseBaseQty     int64
	NoiseProbability float64
	NoiseRiskPct     decimal.Decimal
	NoiseVolatility  decimal.Decimal // price perturbation as a fraction of mid
}

// Config is the full simulator configuration.
type Config struct {
	RedisURL string
	VenueURL string // base URL of the venue API, e.g. http://127.0.0.1:8000/api/v1
	OpsAddr  string // listen address for /health and /metrics

	ActionInterval time.Duration // decision cycle cadence
	StatusInterval time.Duration // per-agent status publish cadence
	StatsInterval  time.Duration // exchange stats publish cadence
	OverrideTTL    time.Duration // lifetime of an installed price override

	TradeCacheSize int
	MinBankroll    decimal.Decimal // agents below this skip their decision step
	DedupTrades    bool            // opt-in: drop trade events with a seen trade id

	Agents map[string][]AgentSpec // symbol → roster
	Params StrategyParams
}

// FromEnv builds a Config from environment variables, falling back to
// the defaults the simulator ships with.
func FromEnv() Config {
	return Config{
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		VenueURL: getEnv("VENUE_URL", "http://127.0.0.1:8000/api/v1"),
		OpsAddr:  getEnv("OPS_ADDR", ":9090"),

		ActionInterval: getDuration("SIM_ACTION_INTERVAL", 500*time.Millisecond),
		StatusInterval: getDuration("SIM_STATUS_INTERVAL", 2*time.Second),
		StatsInterval:  getDuration("SIM_STATS_INTERVAL", 2*time.Second),
		OverrideTTL:    getDuration("SIM_OVERRIDE_TTL", 30*time.Second),

		TradeCacheSize: getInt("SIM_TRADE_CACHE_SIZE", 20),
		MinBankroll:    decimal.NewFromInt(100),
		DedupTrades:    getBool("SIM_DEDUP_TRADES", false),

		Agents: DefaultRoster(),
		Params: DefaultParams(),
	}
}

// DefaultRoster returns the static per-symbol agent configuration.
func DefaultRoster() map[string][]AgentSpec {
	bankroll := decimal.NewFromInt(10000)
	return map[string][]AgentSpec{
		"ABC": {
			{Strategy: StrategyNoise, Risk: 1.0, Bankroll: bankroll},
			{Strategy: StrategyMarketMaker, Risk: 1.0, Bankroll: bankroll},
			{Strategy: StrategyMomentum, Risk: 1.0, Bankroll: bankroll},
		},
		"XYZ": {
			{Strategy: StrategyNoise, Risk: 1.0, Bankroll: bankroll},
			{Strategy: StrategyMarketMaker, Risk: 1.0, Bankroll: bankroll},
			{Strategy: StrategyMomentum, Risk: 1.0, Bankroll: bankroll},
			{Strategy: StrategyNoise, Risk: 1.0, Bankroll: bankroll},
		},
	}
}

// DefaultParams returns the shipped strategy tuning.
func DefaultParams() StrategyParams {
	return StrategyParams{
		Tick: decimal.NewFromFloat(0.01),

		DefaultMid: map[string]decimal.Decimal{
			"TEST": decimal.NewFromInt(100),
		},
		FallbackMid: decimal.NewFromInt(50),
		MaxPosition: 500,

		MMSpread: map[string]decimal.Decimal{
			"TEST": decimal.NewFromFloat(0.10),
			"XYZ":  decimal.NewFromFloat(0.03),
		},
		MMDefaultSpread: decimal.NewFromFloat(0.10),
		MMBaseQty: map[string]int64{
			"TEST": 8,
			"XYZ":  25,
		},
		MMDefaultBaseQty: 10,
		MMRiskPct:        decimal.NewFromFloat(0.25),

		MomentumWindow:    5,
		MomentumThreshold: decimal.NewFromFloat(0.02),
		MomentumBaseQty:   20,
		MomentumRiskPct:   decimal.NewFromFloat(0.15),

		NoiseBaseQty:     15,
		NoiseProbability: 0.75,
		NoiseRiskPct:     decimal.NewFromFloat(0.12),
		NoiseVolatility:  decimal.NewFromFloat(0.005),
	}
}

// KnownStrategy reports whether name is one of the shipped strategies.
func KnownStrategy(name string) bool {
	switch name {
	case StrategyNoise, StrategyMarketMaker, StrategyMomentum:
		return true
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
