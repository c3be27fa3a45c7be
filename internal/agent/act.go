package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/metrics"
	"github.com/JustinMoon-exe/Flashbook/internal/model"
	"github.com/JustinMoon-exe/Flashbook/internal/strategy"
)

// ActionEvent is the informational message published for every
// accepted order submission.
type ActionEvent struct {
	EventID   string           `json:"event_id"`
	Timestamp time.Time        `json:"timestamp"`
	AgentID   string           `json:"agent_id"`
	Action    string           `json:"action"`
	Strategy  string           `json:"strategy"`
	Symbol    string           `json:"symbol"`
	Side      model.Side       `json:"side"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Quantity  int64            `json:"quantity"`
	OrderID   string           `json:"api_order_id"`
	Status    string           `json:"api_status"`
}

// DecideAndAct runs one decision cycle: invoke the selected strategy
// against the current market view and submit whatever it asks for.
// Skipped entirely while inactive or when the bankroll is below the
// configured floor. Submissions run concurrently; each venue-accepted
// order is tracked in the open-order set and the order registry, and
// announced on the action channel best-effort.
func (a *Agent) DecideAndAct(ctx context.Context) {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	if a.bankroll.LessThan(a.deps.MinBankroll) {
		slog.Warn("agent skipped, bankroll below floor",
			"agent", a.id, "bankroll", a.bankroll.StringFixed(2), "floor", a.deps.MinBankroll.StringFixed(2))
		a.mu.Unlock()
		return
	}
	view := strategy.View{
		ID:       a.id,
		Symbol:   a.symbol,
		Risk:     a.riskFactor,
		Bankroll: a.bankroll,
		Position: a.position,
	}
	stratName := a.strategy
	a.mu.Unlock()

	in := strategy.Input{
		Agent:       view,
		Quote:       a.deps.Market.Quote(a.symbol),
		OverrideMid: a.deps.Overrides.Mid(a.symbol, time.Now()),
		Trades:      a.deps.Market.RecentTrades(a.symbol),
		Params:      a.deps.Params,
		Limiter:     a.deps.Limiter,
		Rand:        a.rng,
	}
	requests := strategy.ForName(stratName)(in)
	if len(requests) == 0 {
		return
	}

	orderIDs := make([]string, len(requests))
	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req model.OrderRequest) {
			defer wg.Done()
			id, err := a.deps.Venue.SubmitOrder(ctx, req)
			if err != nil {
				slog.Warn("order submission failed", "agent", a.id, "side", req.Side, "err", err)
				metrics.OrdersFailed.Inc()
				return
			}
			orderIDs[i] = id
		}(i, req)
	}
	wg.Wait()

	for i, orderID := range orderIDs {
		if orderID == "" {
			continue
		}
		req := requests[i]

		a.mu.Lock()
		a.openOrders[orderID] = struct{}{}
		a.mu.Unlock()

		a.deps.Registry.Put(orderID, model.OrderRecord{
			AgentID:  a.id,
			Symbol:   req.Symbol,
			Side:     req.Side,
			Price:    req.Price,
			Quantity: req.Quantity,
		})
		metrics.OrdersSubmitted.WithLabelValues(stratName).Inc()
		slog.Info("order accepted",
			"agent", a.id, "order", orderID, "side", req.Side, "quantity", req.Quantity)

		if a.deps.Bus != nil {
			event := ActionEvent{
				EventID:   uuid.New().String(),
				Timestamp: time.Now().UTC(),
				AgentID:   a.id,
				Action:    "submit_order",
				Strategy:  stratName,
				Symbol:    req.Symbol,
				Side:      req.Side,
				Price:     req.Price,
				Quantity:  req.Quantity,
				OrderID:   orderID,
				Status:    "accepted",
			}
			if err := a.deps.Bus.Publish(ctx, config.AgentActionChannel, event); err != nil {
				slog.Error("failed to publish action event", "agent", a.id, "order", orderID, "err", err)
			}
		}
	}
}
