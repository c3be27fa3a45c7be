package agent_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/agent"
	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/model"
	"github.com/JustinMoon-exe/Flashbook/internal/risk"
	"github.com/JustinMoon-exe/Flashbook/internal/state"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type env struct {
	registry  *state.OrderRegistry
	cache     *state.MarketCache
	overrides *state.OverrideTable
	venue     *fakeVenue
	bus       *fakeBus
}

// fakeVenue accepts every order and hands out sequential ids.
type fakeVenue struct {
	mu     sync.Mutex
	n      int
	orders []model.OrderRequest
	fail   bool
}

func (v *fakeVenue) SubmitOrder(_ context.Context, req model.OrderRequest) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.fail {
		return "", fmt.Errorf("venue unavailable")
	}
	v.n++
	v.orders = append(v.orders, req)
	return fmt.Sprintf("order-%d", v.n), nil
}

type fakeBus struct {
	mu     sync.Mutex
	events []any
}

func (b *fakeBus) Publish(_ context.Context, _ string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, payload)
	return nil
}

func newTestAgent(t *testing.T, spec config.AgentSpec) (*agent.Agent, *env) {
	t.Helper()
	e := &env{
		registry:  state.NewOrderRegistry(),
		cache:     state.NewMarketCache(20),
		overrides: state.NewOverrideTable(),
		venue:     &fakeVenue{},
		bus:       &fakeBus{},
	}
	params := config.DefaultParams()
	deps := agent.Deps{
		Registry:    e.registry,
		Market:      e.cache,
		Overrides:   e.overrides,
		Limiter:     risk.NewLimiter(params.MaxPosition),
		Venue:       e.venue,
		Bus:         e.bus,
		Params:      params,
		MinBankroll: decimal.NewFromInt(100),
	}
	return agent.New("A1", "ABC", spec, deps, rand.New(rand.NewSource(7))), e
}

func defaultSpec() config.AgentSpec {
	return config.AgentSpec{
		Strategy: config.StrategyNoise,
		Risk:     1.0,
		Bankroll: decimal.NewFromInt(10000),
	}
}

// registerFill seeds the registry with an order owned by the agent and
// marks it open, simulating an accepted submission.
func registerFill(e *env, orderID, agentID string, side model.Side, price decimal.Decimal, qty int64) {
	p := price
	e.registry.Put(orderID, model.OrderRecord{
		AgentID:  agentID,
		Symbol:   "ABC",
		Side:     side,
		Price:    &p,
		Quantity: qty,
	})
}

// --- Fill transition tests ---

func TestApplyFill_OpenLong(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)

	a.ApplyFill("o1", d(100), 10, true)

	if got := a.Position(); got != 10 {
		t.Errorf("position = %d, want 10", got)
	}
	if !a.AverageEntryPrice().Equal(d(100)) {
		t.Errorf("avg entry = %s, want 100", a.AverageEntryPrice())
	}
	if !a.Bankroll().Equal(d(9000)) {
		t.Errorf("bankroll = %s, want 9000", a.Bankroll())
	}
	if !a.RealizedPnL().IsZero() {
		t.Errorf("realized pnl = %s, want 0", a.RealizedPnL())
	}
}

// Round trip at the same price books zero PnL and resets avg price.
func TestApplyFill_RoundTripConservesPnL(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	registerFill(e, "o2", "A1", model.SideSell, d(100), 10)

	a.ApplyFill("o1", d(100), 10, true)
	a.ApplyFill("o2", d(100), 10, false)

	if got := a.Position(); got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
	if !a.RealizedPnL().IsZero() {
		t.Errorf("realized pnl = %s, want 0", a.RealizedPnL())
	}
	if !a.AverageEntryPrice().IsZero() {
		t.Errorf("avg entry = %s, want 0 after flatten", a.AverageEntryPrice())
	}
}

// Scenario from the accounting design: buy 10 @ 100, sell 10 @ 101.
func TestApplyFill_FlattenBooksProfit(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	registerFill(e, "o2", "A1", model.SideSell, d(101), 10)

	a.ApplyFill("o1", d(100), 10, true)
	a.ApplyFill("o2", d(101), 10, false)

	if got := a.Position(); got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
	if !a.RealizedPnL().Equal(d(10)) {
		t.Errorf("realized pnl = %s, want 10", a.RealizedPnL())
	}
	if !a.Bankroll().Equal(d(10010)) {
		t.Errorf("bankroll = %s, want 10010", a.Bankroll())
	}
	if !a.AverageEntryPrice().IsZero() {
		t.Errorf("avg entry = %s, want 0", a.AverageEntryPrice())
	}
}

// Long 10 @ 100 hit by a sell of 15 @ 99: flips to short 5, avg price
// becomes the trade price, and PnL reflects only the 10 closed.
func TestApplyFill_FlipLongToShort(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	registerFill(e, "o2", "A1", model.SideSell, d(99), 15)

	a.ApplyFill("o1", d(100), 10, true)
	a.ApplyFill("o2", d(99), 15, false)

	if got := a.Position(); got != -5 {
		t.Errorf("position = %d, want -5", got)
	}
	if !a.AverageEntryPrice().Equal(d(99)) {
		t.Errorf("avg entry = %s, want 99 (trade price)", a.AverageEntryPrice())
	}
	if !a.RealizedPnL().Equal(d(-10)) {
		t.Errorf("realized pnl = %s, want -10", a.RealizedPnL())
	}
}

func TestApplyFill_ReduceKeepsAvgPrice(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	registerFill(e, "o2", "A1", model.SideSell, d(102), 4)

	a.ApplyFill("o1", d(100), 10, true)
	a.ApplyFill("o2", d(102), 4, false)

	if got := a.Position(); got != 6 {
		t.Errorf("position = %d, want 6", got)
	}
	if !a.AverageEntryPrice().Equal(d(100)) {
		t.Errorf("avg entry = %s, want unchanged 100", a.AverageEntryPrice())
	}
	// (102 - 100) * 4 closed
	if !a.RealizedPnL().Equal(d(8)) {
		t.Errorf("realized pnl = %s, want 8", a.RealizedPnL())
	}
}

// Increasing preserves the cost-basis identity:
// new_avg * |new_pos| == old_avg * |old_pos| + price * qty.
func TestApplyFill_IncreaseWeightedAverage(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	registerFill(e, "o2", "A1", model.SideBuy, d(106), 5)

	a.ApplyFill("o1", d(100), 10, true)
	a.ApplyFill("o2", d(106), 5, false)

	if got := a.Position(); got != 15 {
		t.Errorf("position = %d, want 15", got)
	}
	want := d(100).Mul(d(10)).Add(d(106).Mul(d(5))).Div(d(15))
	if !a.AverageEntryPrice().Equal(want) {
		t.Errorf("avg entry = %s, want %s", a.AverageEntryPrice(), want)
	}
	if !a.RealizedPnL().IsZero() {
		t.Errorf("realized pnl = %s, want 0 on increase", a.RealizedPnL())
	}
}

func TestApplyFill_ShortSideConvention(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideSell, d(50), 10)
	registerFill(e, "o2", "A1", model.SideBuy, d(48), 10)

	a.ApplyFill("o1", d(50), 10, true)
	if got := a.Position(); got != -10 {
		t.Fatalf("position = %d, want -10", got)
	}
	a.ApplyFill("o2", d(48), 10, false)

	// Short: (entry - exit) * qty = (50 - 48) * 10
	if !a.RealizedPnL().Equal(d(20)) {
		t.Errorf("realized pnl = %s, want 20", a.RealizedPnL())
	}
}

// --- Defensive behavior ---

func TestApplyFill_UnknownOrderIsNoOp(t *testing.T) {
	a, _ := newTestAgent(t, defaultSpec())

	a.ApplyFill("ghost", d(100), 10, true)

	if got := a.Position(); got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
	if !a.Bankroll().Equal(d(10000)) {
		t.Errorf("bankroll = %s, want unchanged 10000", a.Bankroll())
	}
	if got := a.TradeCount(); got != 0 {
		t.Errorf("trade count = %d, want 0", got)
	}
}

func TestApplyFill_OtherAgentsOrderIsNoOp(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "SomeoneElse", model.SideBuy, d(100), 10)

	a.ApplyFill("o1", d(100), 10, true)

	if got := a.Position(); got != 0 {
		t.Errorf("position = %d, want 0", got)
	}
	if !a.RealizedPnL().IsZero() {
		t.Errorf("realized pnl = %s, want 0", a.RealizedPnL())
	}
}

func TestApplyFill_InvalidPriceAbortsWithoutMutation(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	a.TrackOpen("o1")

	a.ApplyFill("o1", decimal.Decimal{}, 10, true)

	if got := a.TradeCount(); got != 0 {
		t.Errorf("trade count = %d, want 0 after malformed fill", got)
	}
	if !a.Bankroll().Equal(d(10000)) {
		t.Errorf("bankroll = %s, want unchanged", a.Bankroll())
	}
	// The id is still dropped from the open-order set.
	if a.HasOpenOrder("o1") {
		t.Error("open order should be removed even on malformed fill")
	}
}

// A self-trade applies the fill twice, once per role, because taker
// and maker ids are independent orders.
func TestApplyFill_SelfTradeAppliesBothRoles(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "taker", "A1", model.SideBuy, d(100), 5)
	registerFill(e, "maker", "A1", model.SideSell, d(100), 5)

	a.ApplyFill("taker", d(100), 5, true)
	a.ApplyFill("maker", d(100), 5, false)

	if got := a.Position(); got != 0 {
		t.Errorf("position = %d, want 0 after self-trade", got)
	}
	if got := a.TradeCount(); got != 2 {
		t.Errorf("trade count = %d, want 2 (one per role)", got)
	}
	if !a.TradedNotional().Equal(d(1000)) {
		t.Errorf("notional = %s, want 1000", a.TradedNotional())
	}
}

// --- Reset ---

func TestReset_IsTotal(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	a.ApplyFill("o1", d(100), 10, true)
	a.SetActive(false)
	a.SetRisk(1.7)
	if err := a.SetStrategy(config.StrategyMomentum); err != nil {
		t.Fatalf("set strategy: %v", err)
	}

	a.Reset()

	st := a.Status(nil, time.Now())
	if st.Position != 0 || !st.RealizedPnL.IsZero() || st.TradeCount != 0 {
		t.Errorf("financial state not zeroed: %+v", st)
	}
	if !st.AverageEntryPrice.IsZero() || !st.TotalTradedValue.IsZero() {
		t.Errorf("avg/notional not zeroed: %+v", st)
	}
	if !st.IsActive {
		t.Error("reset must force active true")
	}
	if st.Strategy != config.StrategyNoise {
		t.Errorf("strategy = %s, want roster value noise", st.Strategy)
	}
	if st.RiskFactor != 1.0 {
		t.Errorf("risk = %v, want roster value 1.0", st.RiskFactor)
	}
	if !st.Bankroll.Equal(d(10000)) {
		t.Errorf("bankroll = %s, want roster value 10000", st.Bankroll)
	}
	if len(st.OpenOrders) != 0 || a.OpenOrderCount() != 0 {
		t.Error("open-order set must be empty after reset")
	}
}

// --- Setters ---

func TestSetRisk_Clamped(t *testing.T) {
	a, _ := newTestAgent(t, defaultSpec())

	a.SetRisk(5.0)
	if got := a.Status(nil, time.Now()).RiskFactor; got != 2.0 {
		t.Errorf("risk = %v, want clamped 2.0", got)
	}
	a.SetRisk(0.0)
	if got := a.Status(nil, time.Now()).RiskFactor; got != 0.1 {
		t.Errorf("risk = %v, want clamped 0.1", got)
	}
}

func TestSetBankroll_RejectsNegative(t *testing.T) {
	a, _ := newTestAgent(t, defaultSpec())

	if err := a.SetBankroll(d(-5)); err != agent.ErrNegativeBankroll {
		t.Errorf("err = %v, want ErrNegativeBankroll", err)
	}
	if !a.Bankroll().Equal(d(10000)) {
		t.Errorf("bankroll = %s, want prior value intact", a.Bankroll())
	}
}

func TestSetStrategy_RejectsUnknown(t *testing.T) {
	a, _ := newTestAgent(t, defaultSpec())

	if err := a.SetStrategy("hodl"); err != agent.ErrUnknownStrategy {
		t.Errorf("err = %v, want ErrUnknownStrategy", err)
	}
	if got := a.Status(nil, time.Now()).Strategy; got != config.StrategyNoise {
		t.Errorf("strategy = %s, want unchanged noise", got)
	}
}

// --- Status projection ---

func TestStatus_UnrealizedMarksLongAgainstBid(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	registerFill(e, "o1", "A1", model.SideBuy, d(100), 10)
	a.ApplyFill("o1", d(100), 10, true)

	bid, ask := d(103), d(104)
	st := a.Status(&model.Quote{Symbol: "ABC", BidPrice: &bid, AskPrice: &ask}, time.Now())

	// (103 - 100) * 10
	if !st.UnrealizedPnL.Equal(d(30)) {
		t.Errorf("unrealized = %s, want 30", st.UnrealizedPnL)
	}
}

func TestStatus_FlatReportsZeroAvgAndUnrealized(t *testing.T) {
	a, _ := newTestAgent(t, defaultSpec())
	bid := d(100)
	st := a.Status(&model.Quote{Symbol: "ABC", BidPrice: &bid}, time.Now())

	if !st.AverageEntryPrice.IsZero() || !st.UnrealizedPnL.IsZero() {
		t.Errorf("flat agent should report zero avg/unrealized: %+v", st)
	}
}

func TestStatus_OpenOrdersSortedSellsFirstThenPriceDesc(t *testing.T) {
	a, e := newTestAgent(t, defaultSpec())
	seedOpenOrder(t, a, e, "b1", model.SideBuy, d(99), 5)
	seedOpenOrder(t, a, e, "s1", model.SideSell, d(101), 5)
	seedOpenOrder(t, a, e, "b2", model.SideBuy, d(100), 5)
	seedOpenOrder(t, a, e, "s2", model.SideSell, d(102), 5)

	st := a.Status(nil, time.Now())
	if len(st.OpenOrders) != 4 {
		t.Fatalf("open orders = %d, want 4", len(st.OpenOrders))
	}
	wantIDs := []string{"s2", "s1", "b2", "b1"}
	for i, want := range wantIDs {
		if st.OpenOrders[i].ID != want {
			t.Errorf("open order %d = %s, want %s", i, st.OpenOrders[i].ID, want)
		}
	}
}

// seedOpenOrder stands in for an accepted submission: registry entry
// plus open-order tracking.
func seedOpenOrder(t *testing.T, a *agent.Agent, e *env, id string, side model.Side, price decimal.Decimal, qty int64) {
	t.Helper()
	registerFill(e, id, "A1", side, price, qty)
	a.TrackOpen(id)
}

// --- Decide and act ---

func TestDecideAndAct_TracksAcceptedSubmissions(t *testing.T) {
	spec := defaultSpec()
	spec.Strategy = config.StrategyMarketMaker
	a, e := newTestAgent(t, spec)

	bid, ask := d(99.95), d(100.05)
	e.cache.SetQuote(model.Quote{Symbol: "ABC", BidPrice: &bid, BidQty: 10, AskPrice: &ask, AskQty: 10})

	a.DecideAndAct(context.Background())

	// Market maker quotes both sides.
	if got := a.OpenOrderCount(); got != 2 {
		t.Fatalf("open orders = %d, want 2", got)
	}
	if got := e.registry.Len(); got != 2 {
		t.Errorf("registry entries = %d, want 2", got)
	}
	e.bus.mu.Lock()
	events := len(e.bus.events)
	e.bus.mu.Unlock()
	if events != 2 {
		t.Errorf("action events = %d, want 2", events)
	}
}

func TestDecideAndAct_InactiveAgentDoesNothing(t *testing.T) {
	spec := defaultSpec()
	spec.Strategy = config.StrategyMarketMaker
	a, e := newTestAgent(t, spec)
	a.SetActive(false)

	a.DecideAndAct(context.Background())

	if got := len(e.venue.orders); got != 0 {
		t.Errorf("submissions = %d, want 0 for inactive agent", got)
	}
}

func TestDecideAndAct_LowBankrollSkips(t *testing.T) {
	spec := defaultSpec()
	spec.Strategy = config.StrategyMarketMaker
	spec.Bankroll = d(50) // below the 100 floor
	a, e := newTestAgent(t, spec)

	a.DecideAndAct(context.Background())

	if got := len(e.venue.orders); got != 0 {
		t.Errorf("submissions = %d, want 0 below bankroll floor", got)
	}
}

func TestDecideAndAct_VenueFailureLeavesNoTracking(t *testing.T) {
	spec := defaultSpec()
	spec.Strategy = config.StrategyMarketMaker
	a, e := newTestAgent(t, spec)
	e.venue.fail = true

	a.DecideAndAct(context.Background())

	if got := a.OpenOrderCount(); got != 0 {
		t.Errorf("open orders = %d, want 0 when venue rejects", got)
	}
	if got := e.registry.Len(); got != 0 {
		t.Errorf("registry entries = %d, want 0 when venue rejects", got)
	}
}
