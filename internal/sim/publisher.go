package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/agent"
	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/state"
)

// Publisher emits JSON events to a bus channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// ExchangeStatsPayload is the periodic aggregate statistics message.
type ExchangeStatsPayload struct {
	Timestamp        time.Time       `json:"timestamp"`
	TotalTrades      int64           `json:"total_trades"`
	TotalVolumeValue decimal.Decimal `json:"total_volume_value"`
}

// StatsPublisher periodically serializes each agent's status and the
// global exchange statistics onto the bus. Per-agent publishes are
// staggered with an initial jitter so they spread across the interval.
type StatsPublisher struct {
	agents []*agent.Agent
	cache  *state.MarketCache
	stats  *state.ExchangeStats
	bus    Publisher
	gate   *Gate

	statusInterval time.Duration
	statsInterval  time.Duration
}

// NewStatsPublisher creates a stats publisher for the agent fleet.
func NewStatsPublisher(agents []*agent.Agent, cache *state.MarketCache, stats *state.ExchangeStats,
	bus Publisher, gate *Gate, statusInterval, statsInterval time.Duration) *StatsPublisher {

	return &StatsPublisher{
		agents:         agents,
		cache:          cache,
		stats:          stats,
		bus:            bus,
		gate:           gate,
		statusInterval: statusInterval,
		statsInterval:  statsInterval,
	}
}

// Run publishes until ctx is cancelled. Suspended while the gate is
// paused; publish failures are logged and never abort the task.
func (p *StatsPublisher) Run(ctx context.Context) error {
	slog.Info("stats publisher starting",
		"status_interval", p.statusInterval, "stats_interval", p.statsInterval)

	lastStatus := make(map[string]time.Time, len(p.agents))
	now := time.Now()
	for _, ag := range p.agents {
		jitter := time.Duration(rand.Float64() * float64(p.statusInterval))
		lastStatus[ag.ID()] = now.Add(-jitter)
	}
	lastStats := now

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if err := p.gate.Wait(ctx); err != nil {
			slog.Info("stats publisher shutting down")
			return err
		}
		select {
		case <-ctx.Done():
			slog.Info("stats publisher shutting down")
			return ctx.Err()
		case <-ticker.C:
		}

		now := time.Now()
		for _, ag := range p.agents {
			if now.Sub(lastStatus[ag.ID()]) < p.statusInterval {
				continue
			}
			status := ag.Status(p.cache.Quote(ag.Symbol()), now.UTC())
			if err := p.bus.Publish(ctx, config.AgentStatusChannel, status); err != nil {
				slog.Error("failed to publish agent status", "agent", ag.ID(), "err", err)
				continue
			}
			lastStatus[ag.ID()] = now
			slog.Debug("published agent status",
				"agent", ag.ID(), "position", status.Position,
				"trades", status.TradeCount, "realized_pnl", status.RealizedPnL.String())
		}

		if now.Sub(lastStats) >= p.statsInterval {
			trades, notional := p.stats.Snapshot()
			payload := ExchangeStatsPayload{
				Timestamp:        now.UTC(),
				TotalTrades:      trades,
				TotalVolumeValue: notional.Round(2),
			}
			if err := p.bus.Publish(ctx, config.ExchangeStatsChannel, payload); err != nil {
				slog.Error("failed to publish exchange stats", "err", err)
				continue
			}
			lastStats = now
			slog.Debug("published exchange stats", "trades", trades, "value", payload.TotalVolumeValue.String())
		}
	}
}
