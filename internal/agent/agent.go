// Package agent implements the trading agent: its private accounting
// state (bankroll, position, average entry price, realized PnL), the
// fill reconciliation state machine, the periodic decision step, and
// the control-surface setters.
//
// All monetary values use shopspring/decimal — never float64 for money.
// A single per-agent mutex serializes fill reconciliation, decisions,
// status projection, and control mutations: a trade can name the same
// agent as both taker and maker, so two fills may race on one agent.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/model"
	"github.com/JustinMoon-exe/Flashbook/internal/risk"
	"github.com/JustinMoon-exe/Flashbook/internal/state"
)

// Submitter sends orders to the matching venue.
type Submitter interface {
	SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error)
}

// Publisher emits JSON events to a bus channel. Publishing is always
// best-effort for agents.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// Deps are the shared collaborators an agent works against.
type Deps struct {
	Registry  *state.OrderRegistry
	Market    *state.MarketCache
	Overrides *state.OverrideTable
	Limiter   *risk.Limiter
	Venue     Submitter
	Bus       Publisher // nil disables action events
	Params    config.StrategyParams

	// MinBankroll is the floor below which an agent skips its
	// decision step entirely.
	MinBankroll decimal.Decimal
}

// Agent owns the financial state for one simulated trader.
type Agent struct {
	id      string
	symbol  string
	deps    Deps
	initial config.AgentSpec
	rng     *rand.Rand

	mu         sync.Mutex
	active     bool
	strategy   string
	riskFactor float64
	bankroll   decimal.Decimal
	position   int64
	avgEntry   decimal.Decimal
	realized   decimal.Decimal
	tradeCount int64
	notional   decimal.Decimal
	openOrders map[string]struct{}
}

// New creates an agent from its roster spec. A nil rng gets a
// time-seeded source; tests inject a fixed seed.
func New(id, symbol string, spec config.AgentSpec, deps Deps, rng *rand.Rand) *Agent {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	strat := spec.Strategy
	if !config.KnownStrategy(strat) {
		strat = config.StrategyNoise
	}
	a := &Agent{
		id:         id,
		symbol:     symbol,
		deps:       deps,
		initial:    spec,
		rng:        rng,
		active:     true,
		strategy:   strat,
		riskFactor: clampRisk(spec.Risk),
		bankroll:   spec.Bankroll,
		openOrders: make(map[string]struct{}),
	}
	slog.Info("agent initialized",
		"agent", id, "symbol", symbol,
		"strategy", a.strategy, "risk", a.riskFactor, "bankroll", a.bankroll.StringFixed(2))
	return a
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.id }

// Symbol returns the agent's traded symbol.
func (a *Agent) Symbol() string { return a.symbol }

func clampRisk(r float64) float64 {
	if r < 0.1 {
		return 0.1
	}
	if r > 2.0 {
		return 2.0
	}
	return r
}

// --- Fill reconciliation ---

// ApplyFill reconciles one executed trade into the agent's state.
//
// Fills for order ids the registry does not know, or that belong to a
// different agent, are discarded — but the id is still removed from
// the open-order set, which defends against duplicate and late
// deliveries. Once ownership is confirmed the id is removed
// unconditionally, full fill or not.
func (a *Agent) ApplyFill(orderID string, price decimal.Decimal, quantity int64, isTaker bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.deps.Registry.Lookup(orderID)
	if !ok {
		slog.Warn("fill for unknown order", "agent", a.id, "order", orderID)
		delete(a.openOrders, orderID)
		return
	}
	if rec.AgentID != a.id {
		slog.Debug("fill owned by other agent", "agent", a.id, "order", orderID, "owner", rec.AgentID)
		delete(a.openOrders, orderID)
		return
	}
	defer delete(a.openOrders, orderID)

	if quantity <= 0 || price.Sign() <= 0 {
		slog.Error("fill with invalid price/quantity",
			"agent", a.id, "order", orderID, "price", price.String(), "quantity", quantity)
		return
	}

	qtyDec := decimal.NewFromInt(quantity)
	value := price.Mul(qtyDec)
	oldPos := a.position
	oldAvg := a.avgEntry

	a.tradeCount++
	a.notional = a.notional.Add(value)

	switch rec.Side {
	case model.SideBuy:
		a.bankroll = a.bankroll.Sub(value)
		a.position += quantity
	case model.SideSell:
		a.bankroll = a.bankroll.Add(value)
		a.position -= quantity
	default:
		// Registry entries are written by us; an unknown side means a
		// corrupted record. Count the trade but leave position alone.
		slog.Error("registry record with invalid side", "agent", a.id, "order", orderID, "side", rec.Side)
		return
	}
	newPos := a.position

	var pnlInc decimal.Decimal
	switch {
	case oldPos == 0 && newPos != 0: // open
		a.avgEntry = price

	case oldPos != 0 && newPos == 0: // flatten
		pnlInc = closedPnL(oldPos, oldAvg, price, abs64(oldPos))
		a.realized = a.realized.Add(pnlInc)
		a.avgEntry = decimal.Decimal{}

	case (oldPos > 0) != (newPos > 0): // flip; both non-zero here
		pnlInc = closedPnL(oldPos, oldAvg, price, abs64(oldPos))
		a.realized = a.realized.Add(pnlInc)
		a.avgEntry = price

	case abs64(newPos) < abs64(oldPos): // reduce
		pnlInc = closedPnL(oldPos, oldAvg, price, abs64(oldPos)-abs64(newPos))
		a.realized = a.realized.Add(pnlInc)

	default: // increase, same sign
		oldQty := decimal.NewFromInt(abs64(oldPos))
		newQty := decimal.NewFromInt(abs64(newPos))
		a.avgEntry = oldQty.Mul(oldAvg).Add(qtyDec.Mul(price)).Div(newQty)
	}

	slog.Info("fill applied",
		"agent", a.id, "order", orderID, "side", rec.Side, "taker", isTaker,
		"price", price.String(), "quantity", quantity,
		"position", newPos, "avg_entry", a.avgEntry.StringFixed(4),
		"pnl_inc", pnlInc.StringFixed(2), "realized_pnl", a.realized.StringFixed(2),
		"bankroll", a.bankroll.StringFixed(2))
}

// closedPnL computes the realized increment for closing closedQty of a
// position opened at avg: long books exit−entry, short books entry−exit.
func closedPnL(oldPos int64, avg, price decimal.Decimal, closedQty int64) decimal.Decimal {
	qty := decimal.NewFromInt(closedQty)
	if oldPos > 0 {
		return price.Sub(avg).Mul(qty)
	}
	return avg.Sub(price).Mul(qty)
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// --- Status projection ---

// OpenOrder is one entry of a status snapshot's open-order list.
type OpenOrder struct {
	ID       string           `json:"id"`
	Side     model.Side       `json:"side"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity int64            `json:"quantity"`
}

// Status is the published point-in-time view of an agent.
type Status struct {
	AgentID           string          `json:"agent_id"`
	Symbol            string          `json:"symbol"`
	IsActive          bool            `json:"is_active"`
	Strategy          string          `json:"strategy"`
	RiskFactor        float64         `json:"risk_factor"`
	Bankroll          decimal.Decimal `json:"bankroll"`
	Position          int64           `json:"position"`
	AverageEntryPrice decimal.Decimal `json:"average_entry_price"`
	RealizedPnL       decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL     decimal.Decimal `json:"unrealized_pnl"`
	TradeCount        int64           `json:"trade_count"`
	TotalTradedValue  decimal.Decimal `json:"total_traded_value"`
	OpenOrders        []OpenOrder     `json:"open_orders"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Status projects the agent's state against the given quote. Pure: no
// agent state is mutated.
func (a *Agent) Status(quote *model.Quote, now time.Time) Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	unrealized := a.unrealizedLocked(quote)

	orders := make([]OpenOrder, 0, len(a.openOrders))
	for id := range a.openOrders {
		rec, ok := a.deps.Registry.Lookup(id)
		if !ok {
			slog.Warn("open order missing from registry", "agent", a.id, "order", id)
			continue
		}
		orders = append(orders, OpenOrder{ID: id, Side: rec.Side, Price: rec.Price, Quantity: rec.Quantity})
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].Side != orders[j].Side {
			return orders[i].Side > orders[j].Side // sells before buys
		}
		return orderPrice(orders[i]).GreaterThan(orderPrice(orders[j]))
	})

	avg := decimal.Decimal{}
	if a.position != 0 {
		avg = a.avgEntry.Round(4)
	}

	return Status{
		AgentID:           a.id,
		Symbol:            a.symbol,
		IsActive:          a.active,
		Strategy:          a.strategy,
		RiskFactor:        a.riskFactor,
		Bankroll:          a.bankroll.Round(2),
		Position:          a.position,
		AverageEntryPrice: avg,
		RealizedPnL:       a.realized.Round(2),
		UnrealizedPnL:     unrealized.Round(2),
		TradeCount:        a.tradeCount,
		TotalTradedValue:  a.notional.Round(2),
		OpenOrders:        orders,
		Timestamp:         now,
	}
}

func orderPrice(o OpenOrder) decimal.Decimal {
	if o.Price == nil {
		return decimal.Decimal{}
	}
	return *o.Price
}

// unrealizedLocked marks the open position to market: best bid for a
// long, best ask for a short, falling back to mid or whichever side
// exists. Flat positions and missing quotes mark to zero.
func (a *Agent) unrealizedLocked(quote *model.Quote) decimal.Decimal {
	if a.position == 0 || quote == nil {
		return decimal.Decimal{}
	}
	var mark *decimal.Decimal
	if a.position > 0 {
		mark = quote.BidPrice
	} else {
		mark = quote.AskPrice
	}
	if mark == nil {
		mark = quote.Mid()
	}
	if mark == nil {
		return decimal.Decimal{}
	}
	qty := decimal.NewFromInt(abs64(a.position))
	if a.position > 0 {
		return mark.Sub(a.avgEntry).Mul(qty)
	}
	return a.avgEntry.Sub(*mark).Mul(qty)
}

// --- Control surface ---

// SetActive toggles whether the agent participates in decision cycles.
func (a *Agent) SetActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active != active {
		a.active = active
		slog.Info("agent activity changed", "agent", a.id, "active", active)
	}
}

var (
	// ErrUnknownStrategy rejects SetStrategy with a name that is not a
	// shipped strategy; the current strategy is left intact.
	ErrUnknownStrategy = errors.New("agent: unknown strategy")

	// ErrNegativeBankroll rejects SetBankroll with a negative amount;
	// the prior value is left intact.
	ErrNegativeBankroll = errors.New("agent: bankroll must be non-negative")
)

// SetStrategy switches the agent's decision function. Unknown names
// leave the current strategy intact.
func (a *Agent) SetStrategy(name string) error {
	if !config.KnownStrategy(name) {
		return ErrUnknownStrategy
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.strategy != name {
		a.strategy = name
		slog.Info("agent strategy changed", "agent", a.id, "strategy", name)
	}
	return nil
}

// SetRisk updates the risk factor, clamped to [0.1, 2.0].
func (a *Agent) SetRisk(r float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.riskFactor
	a.riskFactor = clampRisk(r)
	if old != a.riskFactor {
		slog.Info("agent risk changed", "agent", a.id, "from", old, "to", a.riskFactor)
	}
}

// SetBankroll replaces the bankroll. Negative amounts are rejected.
func (a *Agent) SetBankroll(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeBankroll
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bankroll = amount
	slog.Info("agent bankroll set", "agent", a.id, "bankroll", amount.StringFixed(2))
	return nil
}

// Reset restores the agent to its original roster configuration:
// financial state zeroed, open orders cleared, active forced true.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	slog.Warn("resetting agent", "agent", a.id)
	strat := a.initial.Strategy
	if !config.KnownStrategy(strat) {
		strat = config.StrategyNoise
	}
	a.strategy = strat
	a.riskFactor = clampRisk(a.initial.Risk)
	a.bankroll = a.initial.Bankroll
	a.position = 0
	a.avgEntry = decimal.Decimal{}
	a.realized = decimal.Decimal{}
	a.tradeCount = 0
	a.notional = decimal.Decimal{}
	a.openOrders = make(map[string]struct{})
	a.active = true
}

// --- Snapshot accessors ---

// Position returns the current signed position.
func (a *Agent) Position() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// Bankroll returns the current bankroll.
func (a *Agent) Bankroll() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bankroll
}

// AverageEntryPrice returns the cost basis of the open position; zero
// when flat.
func (a *Agent) AverageEntryPrice() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avgEntry
}

// RealizedPnL returns the cumulative booked profit and loss.
func (a *Agent) RealizedPnL() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realized
}

// TradeCount returns the cumulative fill count.
func (a *Agent) TradeCount() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tradeCount
}

// TradedNotional returns the cumulative traded value.
func (a *Agent) TradedNotional() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.notional
}

// HasOpenOrder reports whether the agent still tracks orderID as live.
func (a *Agent) HasOpenOrder(orderID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.openOrders[orderID]
	return ok
}

// OpenOrderCount returns the size of the open-order set.
func (a *Agent) OpenOrderCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.openOrders)
}
