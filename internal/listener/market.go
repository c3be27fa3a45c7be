// Package listener implements the two long-lived bus consumers: the
// market-data listener (quotes, trades, fill reconciliation) and the
// control listener (operator commands, market shocks).
//
// Both tolerate malformed messages by logging and dropping them, and
// survive transport failures with bounded backoff and resubscription.
// No failure while processing one message may abort a listener.
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JustinMoon-exe/Flashbook/internal/agent"
	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/metrics"
	"github.com/JustinMoon-exe/Flashbook/internal/model"
	"github.com/JustinMoon-exe/Flashbook/internal/state"
)

const (
	reconnectBackoff    = 5 * time.Second
	maxReconnectBackoff = 30 * time.Second
)

// errSubscriptionClosed signals that go-redis closed the subscription
// channel underneath us, usually after a dead connection.
var errSubscriptionClosed = errors.New("listener: subscription channel closed")

// MarketListener consumes quote and trade events, maintains the market
// cache and exchange statistics, and routes fills to owning agents.
type MarketListener struct {
	rdb      *redis.Client
	cache    *state.MarketCache
	registry *state.OrderRegistry
	stats    *state.ExchangeStats
	agents   map[string]*agent.Agent

	// seenTrades dedups trade events by trade id when enabled. Only
	// the listener goroutine touches it.
	seenTrades map[string]struct{}
}

// NewMarketListener creates a market listener over the given shared
// state. The agents map is read-only after startup. dedupTrades
// enables the opt-in trade-id dedup set.
func NewMarketListener(rdb *redis.Client, cache *state.MarketCache, registry *state.OrderRegistry,
	stats *state.ExchangeStats, agents map[string]*agent.Agent, dedupTrades bool) *MarketListener {

	l := &MarketListener{
		rdb:      rdb,
		cache:    cache,
		registry: registry,
		stats:    stats,
		agents:   agents,
	}
	if dedupTrades {
		l.seenTrades = make(map[string]struct{})
	}
	return l
}

// Run consumes bus messages until ctx is cancelled. A broken
// subscription is re-established with growing backoff; the listener
// never terminates on a single connection error.
func (l *MarketListener) Run(ctx context.Context) error {
	slog.Info("market listener starting",
		"pattern", config.BBOChannelPattern, "channel", config.TradeChannel)

	backoff := reconnectBackoff
	for {
		pubsub := l.rdb.PSubscribe(ctx, config.BBOChannelPattern)
		if err := pubsub.Subscribe(ctx, config.TradeChannel); err != nil {
			pubsub.Close()
			slog.Error("market listener subscribe failed", "err", err)
			metrics.Reconnects.WithLabelValues("market").Inc()
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = growBackoff(backoff)
			continue
		}
		backoff = reconnectBackoff

		if err := l.consume(ctx, pubsub); err != nil {
			pubsub.Close()
			if ctx.Err() != nil {
				slog.Info("market listener shutting down")
				return ctx.Err()
			}
			slog.Error("market listener connection lost, resubscribing", "err", err)
			metrics.Reconnects.WithLabelValues("market").Inc()
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			backoff = growBackoff(backoff)
		}
	}
}

// consume drains the subscription channel until it closes or ctx ends.
func (l *MarketListener) consume(ctx context.Context, pubsub *redis.PubSub) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errSubscriptionClosed
			}
			l.dispatch(msg)
		}
	}
}

func (l *MarketListener) dispatch(msg *redis.Message) {
	switch {
	case msg.Pattern == config.BBOChannelPattern:
		l.handleQuote([]byte(msg.Payload))
	case msg.Channel == config.TradeChannel:
		l.handleTrade([]byte(msg.Payload))
	default:
		slog.Debug("market listener ignoring message", "channel", msg.Channel)
	}
}

// handleQuote overwrites the cached snapshot for the quoted symbol.
func (l *MarketListener) handleQuote(data []byte) {
	var q model.Quote
	if err := json.Unmarshal(data, &q); err != nil || q.Symbol == "" {
		slog.Error("dropping malformed quote event", "err", err, "payload", truncate(data))
		metrics.MessagesDropped.WithLabelValues("market").Inc()
		return
	}
	l.cache.SetQuote(q)
}

// handleTrade appends to the trade history, bumps exchange statistics,
// and reconciles the fill into the taker's and maker's agents. A
// self-trade resolves both ids to the same agent and applies twice,
// once per role, since each order id is an independent order.
func (l *MarketListener) handleTrade(data []byte) {
	var t model.Trade
	if err := json.Unmarshal(data, &t); err != nil {
		slog.Error("dropping malformed trade event", "err", err, "payload", truncate(data))
		metrics.MessagesDropped.WithLabelValues("market").Inc()
		return
	}
	if t.Symbol == "" || t.Price.Sign() <= 0 || t.Quantity <= 0 {
		slog.Error("dropping invalid trade event",
			"symbol", t.Symbol, "price", t.Price.String(), "quantity", t.Quantity)
		metrics.MessagesDropped.WithLabelValues("market").Inc()
		return
	}

	if l.seenTrades != nil && t.TradeID != "" {
		if _, dup := l.seenTrades[t.TradeID]; dup {
			slog.Warn("dropping duplicate trade event", "trade", t.TradeID)
			metrics.MessagesDropped.WithLabelValues("market").Inc()
			return
		}
		l.seenTrades[t.TradeID] = struct{}{}
	}

	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	l.cache.AppendTrade(t.Symbol, model.TradePoint{Price: t.Price, Quantity: t.Quantity, Timestamp: ts})
	l.stats.RecordTrade(t.Price, t.Quantity)
	metrics.TradesSeen.WithLabelValues(t.Symbol).Inc()

	l.applyFill(t, t.TakerOrderID, true)
	l.applyFill(t, t.MakerOrderID, false)
}

// applyFill resolves one order id to its owning agent and hands the
// fill over. Unresolvable references are warnings, never failures.
func (l *MarketListener) applyFill(t model.Trade, orderID string, isTaker bool) {
	if orderID == "" {
		return
	}
	rec, ok := l.registry.Lookup(orderID)
	if !ok {
		slog.Warn("trade references unknown order",
			"trade", t.TradeID, "order", orderID, "taker", isTaker)
		return
	}
	ag, ok := l.agents[rec.AgentID]
	if !ok {
		slog.Warn("trade references unknown agent",
			"trade", t.TradeID, "order", orderID, "agent", rec.AgentID)
		return
	}
	ag.ApplyFill(orderID, t.Price, t.Quantity, isTaker)
	role := "maker"
	if isTaker {
		role = "taker"
	}
	metrics.FillsApplied.WithLabelValues(role).Inc()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func growBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxReconnectBackoff {
		return maxReconnectBackoff
	}
	return d
}

func truncate(data []byte) string {
	const limit = 200
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
