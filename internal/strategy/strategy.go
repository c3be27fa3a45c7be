// Package strategy implements the agent decision functions. Each
// strategy is a pure function of its Input — agent view, current quote
// (possibly overridden by an active price shock), and recent trade
// history — returning zero or more order requests. Randomness comes in
// through the Input so decisions are reproducible under test.
package strategy

import (
	"log/slog"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/config"
	"github.com/JustinMoon-exe/Flashbook/internal/model"
	"github.com/JustinMoon-exe/Flashbook/internal/risk"
)

// View is the read-only slice of agent state a strategy may consult.
type View struct {
	ID       string
	Symbol   string
	Risk     float64
	Bankroll decimal.Decimal
	Position int64
}

// Input carries everything a decision function needs for one cycle.
type Input struct {
	Agent       View
	Quote       *model.Quote     // nil until a quote event arrives
	OverrideMid *decimal.Decimal // active price shock, nil when none
	Trades      []model.TradePoint
	Params      config.StrategyParams
	Limiter     *risk.Limiter
	Rand        *rand.Rand
}

// Func is a decision function.
type Func func(in Input) []model.OrderRequest

// ForName resolves a roster/control strategy name. Unknown names fall
// back to noise, matching agent construction.
func ForName(name string) Func {
	switch name {
	case config.StrategyMarketMaker:
		return MarketMaker
	case config.StrategyMomentum:
		return Momentum
	default:
		return Noise
	}
}

var two = decimal.NewFromInt(2)

// effectiveMid resolves the reference mid-price with the precedence
// override > live quote mid > side-biased single quote > symbol default.
func effectiveMid(in Input) decimal.Decimal {
	if in.OverrideMid != nil {
		return *in.OverrideMid
	}
	if q := in.Quote; q != nil {
		switch {
		case q.BidPrice != nil && q.AskPrice != nil:
			return q.BidPrice.Add(*q.AskPrice).Div(two)
		case q.BidPrice != nil:
			return q.BidPrice.Mul(decimal.NewFromFloat(0.998))
		case q.AskPrice != nil:
			return q.AskPrice.Mul(decimal.NewFromFloat(1.002))
		}
	}
	if mid, ok := in.Params.DefaultMid[in.Agent.Symbol]; ok {
		return mid
	}
	return in.Params.FallbackMid
}

var minPrice = decimal.NewFromFloat(0.01)

// quantizePrice rounds to 2 decimal places with a 0.01 floor.
func quantizePrice(p decimal.Decimal) decimal.Decimal {
	p = p.Round(2)
	if p.LessThan(minPrice) {
		return minPrice
	}
	return p
}

// Noise trades a random side around the effective mid with a small
// uniform perturbation, with a fixed per-cycle probability.
func Noise(in Input) []model.OrderRequest {
	if in.Rand.Float64() >= in.Params.NoiseProbability {
		return nil
	}

	side := model.SideBuy
	if in.Rand.Intn(2) == 1 {
		side = model.SideSell
	}

	mid := effectiveMid(in)
	volatility := mid.Mul(in.Params.NoiseVolatility)
	offset := decimal.NewFromFloat(in.Rand.Float64()*2 - 1).Mul(volatility)
	price := quantizePrice(mid.Add(offset))

	qty := int64(float64(in.Params.NoiseBaseQty) * in.Agent.Risk * (0.5 + in.Rand.Float64()))
	if qty < 1 {
		qty = 1
	}

	if err := in.Limiter.CheckOrder(price, qty, side, in.Agent.Bankroll, in.Agent.Position, in.Params.NoiseRiskPct); err != nil {
		slog.Debug("noise order skipped", "agent", in.Agent.ID, "err", err)
		return nil
	}

	return []model.OrderRequest{{Symbol: in.Agent.Symbol, Side: side, Price: &price, Quantity: qty}}
}

// MarketMaker quotes both sides of the effective mid at the configured
// per-symbol spread, clamping one tick inward of the live quote to
// avoid crossing it. Each side is risk-checked independently; a side
// that fails is simply not quoted.
func MarketMaker(in Input) []model.OrderRequest {
	p := in.Params
	spread, ok := p.MMSpread[in.Agent.Symbol]
	if !ok {
		spread = p.MMDefaultSpread
	}
	baseQty, ok := p.MMBaseQty[in.Agent.Symbol]
	if !ok {
		baseQty = p.MMDefaultBaseQty
	}
	qty := int64(float64(baseQty) * in.Agent.Risk * 2)
	if qty < 1 {
		qty = 1
	}

	mid := effectiveMid(in)
	half := spread.Div(two)
	bidPx := quantizePrice(mid.Sub(half))
	askPx := quantizePrice(mid.Add(half))

	// Never cross the live book: pull the offending side one tick
	// inside the touch.
	if q := in.Quote; q != nil {
		if q.BidPrice != nil && askPx.LessThanOrEqual(*q.BidPrice) {
			askPx = quantizePrice(q.BidPrice.Add(p.Tick))
		}
		if q.AskPrice != nil && bidPx.GreaterThanOrEqual(*q.AskPrice) {
			bidPx = quantizePrice(q.AskPrice.Sub(p.Tick))
		}
	}

	var out []model.OrderRequest
	if err := in.Limiter.CheckOrder(bidPx, qty, model.SideBuy, in.Agent.Bankroll, in.Agent.Position, p.MMRiskPct); err != nil {
		slog.Debug("mm bid skipped", "agent", in.Agent.ID, "err", err)
	} else {
		px := bidPx
		out = append(out, model.OrderRequest{Symbol: in.Agent.Symbol, Side: model.SideBuy, Price: &px, Quantity: qty})
	}
	if err := in.Limiter.CheckOrder(askPx, qty, model.SideSell, in.Agent.Bankroll, in.Agent.Position, p.MMRiskPct); err != nil {
		slog.Debug("mm ask skipped", "agent", in.Agent.ID, "err", err)
	} else {
		px := askPx
		out = append(out, model.OrderRequest{Symbol: in.Agent.Symbol, Side: model.SideSell, Price: &px, Quantity: qty})
	}
	return out
}

// Momentum compares the last trade against the lookback average and
// chases a deviation beyond the threshold, pricing one tick through
// the nearer side of the live quote.
func Momentum(in Input) []model.OrderRequest {
	p := in.Params
	if len(in.Trades) < p.MomentumWindow {
		return nil
	}

	window := in.Trades[len(in.Trades)-p.MomentumWindow:]
	sum := decimal.Decimal{}
	for _, tp := range window {
		sum = sum.Add(tp.Price)
	}
	last := window[len(window)-1].Price
	avg := sum.Div(decimal.NewFromInt(int64(len(window))))
	diff := last.Sub(avg)

	var side model.Side
	var ref decimal.Decimal
	switch {
	case diff.GreaterThan(p.MomentumThreshold):
		side = model.SideBuy
		if q := in.Quote; q != nil && q.AskPrice != nil {
			ref = *q.AskPrice
		} else if in.Quote != nil || in.OverrideMid != nil {
			ref = effectiveMid(in)
		} else {
			ref = last
		}
		ref = ref.Add(p.Tick)
	case diff.LessThan(p.MomentumThreshold.Neg()):
		side = model.SideSell
		if q := in.Quote; q != nil && q.BidPrice != nil {
			ref = *q.BidPrice
		} else if in.Quote != nil || in.OverrideMid != nil {
			ref = effectiveMid(in)
		} else {
			ref = last
		}
		ref = ref.Sub(p.Tick)
	default:
		return nil
	}

	price := quantizePrice(ref)
	qty := int64(float64(p.MomentumBaseQty) * in.Agent.Risk)
	if qty < 1 {
		qty = 1
	}

	if err := in.Limiter.CheckOrder(price, qty, side, in.Agent.Bankroll, in.Agent.Position, p.MomentumRiskPct); err != nil {
		slog.Debug("momentum order skipped", "agent", in.Agent.ID, "err", err)
		return nil
	}

	return []model.OrderRequest{{Symbol: in.Agent.Symbol, Side: side, Price: &price, Quantity: qty}}
}
