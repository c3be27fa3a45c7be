package listener

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/agent"
	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/metrics"
	"github.com/JustinMoon-exe/Flashbook/internal/sim"
	"github.com/JustinMoon-exe/Flashbook/internal/state"
)

// ControlListener consumes operator commands and market-shock events.
type ControlListener struct {
	rdb       *redis.Client
	gate      *sim.Gate
	agents    map[string]*agent.Agent
	cache     *state.MarketCache
	overrides *state.OverrideTable
	registry  *state.OrderRegistry
	stats     *state.ExchangeStats
	params    config.StrategyParams

	overrideTTL time.Duration
	now         func() time.Time
}

// NewControlListener creates a control listener over the shared state.
func NewControlListener(rdb *redis.Client, gate *sim.Gate, agents map[string]*agent.Agent,
	cache *state.MarketCache, overrides *state.OverrideTable, registry *state.OrderRegistry,
	stats *state.ExchangeStats, params config.StrategyParams, overrideTTL time.Duration) *ControlListener {

	return &ControlListener{
		rdb:         rdb,
		gate:        gate,
		agents:      agents,
		cache:       cache,
		overrides:   overrides,
		registry:    registry,
		stats:       stats,
		params:      params,
		overrideTTL: overrideTTL,
		now:         time.Now,
	}
}

// Run consumes control messages until ctx is cancelled, resubscribing
// with backoff after transport failures.
func (l *ControlListener) Run(ctx context.Context) error {
	slog.Info("control listener starting",
		"control", config.ControlChannel, "shock", config.ShockChannel)

	backoff := reconnectBackoff
	for {
		pubsub := l.rdb.Subscribe(ctx, config.ControlChannel, config.ShockChannel)
		err := l.consume(ctx, pubsub)
		pubsub.Close()
		if ctx.Err() != nil {
			slog.Info("control listener shutting down")
			return ctx.Err()
		}
		slog.Error("control listener connection lost, resubscribing", "err", err)
		metrics.Reconnects.WithLabelValues("control").Inc()
		if err := sleepCtx(ctx, backoff); err != nil {
			return err
		}
		backoff = growBackoff(backoff)
	}
}

func (l *ControlListener) consume(ctx context.Context, pubsub *redis.PubSub) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			switch msg.Channel {
			case config.ControlChannel:
				l.handleControl([]byte(msg.Payload))
			case config.ShockChannel:
				l.handleShock([]byte(msg.Payload))
			}
		}
	}
}

// --- Control commands ---

// commandKind is the closed set of operator commands.
type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdReset
	cmdSetActive
	cmdSetStrategy
	cmdSetRisk
	cmdSetBankroll
)

// command is a decoded, type-checked operator command.
type command struct {
	kind    commandKind
	agentID string
	boolVal bool
	strVal  string
	numVal  float64
}

type controlWire struct {
	Command   string          `json:"command"`
	AgentID   string          `json:"agent_id"`
	Parameter string          `json:"parameter"`
	Value     json.RawMessage `json:"value"`
}

// parseCommand decodes a control payload into the closed command set.
// Type mismatches on the value field are errors, not panics.
func parseCommand(data []byte) (command, error) {
	var w controlWire
	if err := json.Unmarshal(data, &w); err != nil {
		return command{}, fmt.Errorf("decode control payload: %w", err)
	}

	if w.Command != "" {
		switch w.Command {
		case "pause":
			return command{kind: cmdPause}, nil
		case "resume":
			return command{kind: cmdResume}, nil
		case "reset":
			return command{kind: cmdReset}, nil
		}
		return command{}, fmt.Errorf("unknown command %q", w.Command)
	}

	if w.AgentID == "" || w.Parameter == "" || len(w.Value) == 0 {
		return command{}, fmt.Errorf("control payload missing agent_id/parameter/value")
	}
	// Unmarshalling null into a bool/string/float64 is a silent no-op,
	// so it would slip through the per-parameter type checks below and
	// apply a zero value.
	if bytes.Equal(w.Value, []byte("null")) {
		return command{}, fmt.Errorf("control payload with null value for parameter %q", w.Parameter)
	}

	cmd := command{agentID: w.AgentID}
	switch w.Parameter {
	case "active":
		cmd.kind = cmdSetActive
		if err := json.Unmarshal(w.Value, &cmd.boolVal); err != nil {
			return command{}, fmt.Errorf("parameter active wants a bool: %w", err)
		}
	case "strategy":
		cmd.kind = cmdSetStrategy
		if err := json.Unmarshal(w.Value, &cmd.strVal); err != nil {
			return command{}, fmt.Errorf("parameter strategy wants a string: %w", err)
		}
	case "risk":
		cmd.kind = cmdSetRisk
		if err := json.Unmarshal(w.Value, &cmd.numVal); err != nil {
			return command{}, fmt.Errorf("parameter risk wants a number: %w", err)
		}
	case "bankroll":
		cmd.kind = cmdSetBankroll
		if err := json.Unmarshal(w.Value, &cmd.numVal); err != nil {
			return command{}, fmt.Errorf("parameter bankroll wants a number: %w", err)
		}
	default:
		return command{}, fmt.Errorf("unknown parameter %q", w.Parameter)
	}
	return cmd, nil
}

func (l *ControlListener) handleControl(data []byte) {
	cmd, err := parseCommand(data)
	if err != nil {
		slog.Warn("ignoring invalid control command", "err", err, "payload", truncate(data))
		metrics.MessagesDropped.WithLabelValues("control").Inc()
		return
	}
	l.apply(cmd)
}

func (l *ControlListener) apply(cmd command) {
	switch cmd.kind {
	case cmdPause:
		slog.Info("pausing simulation")
		l.gate.Pause()

	case cmdResume:
		slog.Info("resuming simulation")
		l.gate.Resume()

	case cmdReset:
		l.reset()

	case cmdSetActive, cmdSetStrategy, cmdSetRisk, cmdSetBankroll:
		ag, ok := l.agents[cmd.agentID]
		if !ok {
			slog.Warn("control command for unknown agent", "agent", cmd.agentID)
			return
		}
		switch cmd.kind {
		case cmdSetActive:
			ag.SetActive(cmd.boolVal)
		case cmdSetStrategy:
			if err := ag.SetStrategy(cmd.strVal); err != nil {
				slog.Warn("control command rejected", "agent", cmd.agentID, "err", err)
			}
		case cmdSetRisk:
			ag.SetRisk(cmd.numVal)
		case cmdSetBankroll:
			if err := ag.SetBankroll(decimal.NewFromFloat(cmd.numVal)); err != nil {
				slog.Warn("control command rejected", "agent", cmd.agentID, "err", err)
			}
		}
	}
}

// reset snapshot-clears the shared caches and statistics and restores
// every agent to its roster configuration. The system stays paused
// afterwards so an operator can inspect state before resuming.
func (l *ControlListener) reset() {
	slog.Warn("resetting simulation")
	l.gate.Pause()
	l.cache.Clear()
	l.overrides.Clear()
	l.registry.Clear()
	l.stats.Reset()
	for _, ag := range l.agents {
		ag.Reset()
	}
	slog.Info("simulation reset complete, remaining paused", "agents", len(l.agents))
}

// --- Market shocks ---

type shockWire struct {
	Symbol  string  `json:"symbol"`
	Percent float64 `json:"percent"` // signed fraction, +0.05 = +5%
}

// handleShock installs a forced mid-price computed from the current
// effective mid (or the symbol default when no quote exists), with a
// fixed expiry horizon from now.
func (l *ControlListener) handleShock(data []byte) {
	var w shockWire
	if err := json.Unmarshal(data, &w); err != nil || w.Symbol == "" {
		slog.Warn("ignoring invalid shock event", "err", err, "payload", truncate(data))
		metrics.MessagesDropped.WithLabelValues("control").Inc()
		return
	}

	now := l.now()
	mid := l.effectiveMid(w.Symbol, now)
	shift := decimal.NewFromFloat(1 + w.Percent)
	forced := mid.Mul(shift).Round(2)
	expiry := now.Add(l.overrideTTL)

	l.overrides.Set(w.Symbol, forced, expiry)
	slog.Info("price override installed",
		"symbol", w.Symbol, "percent", w.Percent,
		"mid", mid.String(), "forced", forced.String(), "expiry", expiry)
}

func (l *ControlListener) effectiveMid(symbol string, now time.Time) decimal.Decimal {
	if mid := l.overrides.Mid(symbol, now); mid != nil {
		return *mid
	}
	if mid := l.cache.Quote(symbol).Mid(); mid != nil {
		return *mid
	}
	if mid, ok := l.params.DefaultMid[symbol]; ok {
		return mid
	}
	return l.params.FallbackMid
}
