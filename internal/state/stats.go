package state

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ExchangeStats accumulates the aggregate trade count and traded
// notional across all symbols. Incremented by the market listener
// under its own lock; both values are monotonically non-decreasing
// between resets.
type ExchangeStats struct {
	mu       sync.Mutex
	trades   int64
	notional decimal.Decimal
}

// NewExchangeStats creates zeroed statistics.
func NewExchangeStats() *ExchangeStats {
	return &ExchangeStats{}
}

// RecordTrade adds one trade of price×quantity notional.
func (s *ExchangeStats) RecordTrade(price decimal.Decimal, quantity int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades++
	s.notional = s.notional.Add(price.Mul(decimal.NewFromInt(quantity)))
}

// Snapshot returns the current totals.
func (s *ExchangeStats) Snapshot() (trades int64, notional decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trades, s.notional
}

// Reset zeroes both totals. Used by the reset command.
func (s *ExchangeStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = 0
	s.notional = decimal.Decimal{}
}
