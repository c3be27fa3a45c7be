// Package risk implements the pre-trade checks every strategy runs
// before emitting an order: a bankroll-fraction cap on estimated
// notional and a global absolute position limit.
//
// These checks are advisory — fills can still take a bankroll negative
// because the venue settles asynchronously — but no strategy may emit
// an order that fails either of them.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/model"
)

var (
	// ErrNotionalLimit is returned when an order's estimated notional
	// exceeds the strategy's configured fraction of the agent bankroll.
	ErrNotionalLimit = errors.New("risk: estimated notional exceeds bankroll fraction")

	// ErrPositionLimit is returned when a fill of the order would push
	// the agent's absolute position beyond the global maximum.
	ErrPositionLimit = errors.New("risk: absolute position limit exceeded")
)

// Limiter enforces the global position limit. The bankroll fraction is
// supplied per check because each strategy carries its own.
type Limiter struct {
	// MaxPosition is the maximum absolute signed position any agent
	// may hold in its symbol.
	MaxPosition int64
}

// NewLimiter creates a limiter with the given position cap.
func NewLimiter(maxPosition int64) *Limiter {
	if maxPosition < 1 {
		maxPosition = 1
	}
	return &Limiter{MaxPosition: maxPosition}
}

// CheckOrder validates one prospective order against the agent's
// current bankroll and signed position. Returns nil when the order is
// within limits.
func (l *Limiter) CheckOrder(price decimal.Decimal, quantity int64, side model.Side,
	bankroll decimal.Decimal, position int64, bankrollPct decimal.Decimal) error {

	notional := price.Mul(decimal.NewFromInt(quantity))
	if notional.GreaterThan(bankroll.Mul(bankrollPct)) {
		return ErrNotionalLimit
	}

	next := position
	if side == model.SideBuy {
		next += quantity
	} else {
		next -= quantity
	}
	if abs64(next) > l.MaxPosition {
		return ErrPositionLimit
	}
	return nil
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
