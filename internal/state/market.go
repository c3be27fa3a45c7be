package state

import (
	"sync"

	"github.com/JustinMoon-exe/Flashbook/internal/model"
)

// MarketCache keeps the latest best-bid/offer per symbol and a bounded
// FIFO history of recent trades. Written only by the market listener;
// read concurrently by strategies and status reporting, so reads hand
// out copies.
type MarketCache struct {
	mu        sync.RWMutex
	quotes    map[string]model.Quote
	trades    map[string][]model.TradePoint
	tradeSize int
}

// NewMarketCache creates a cache whose per-symbol trade history holds
// at most tradeSize entries.
func NewMarketCache(tradeSize int) *MarketCache {
	if tradeSize < 1 {
		tradeSize = 1
	}
	return &MarketCache{
		quotes:    make(map[string]model.Quote),
		trades:    make(map[string][]model.TradePoint),
		tradeSize: tradeSize,
	}
}

// SetQuote overwrites the cached snapshot for the quote's symbol.
func (c *MarketCache) SetQuote(q model.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = q
}

// Quote returns a copy of the latest snapshot for symbol, or nil if no
// quote has been seen yet.
func (c *MarketCache) Quote(symbol string) *model.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return nil
	}
	return &q
}

// AppendTrade appends to the symbol's history, evicting the oldest
// entry once the cap is reached.
func (c *MarketCache) AppendTrade(symbol string, tp model.TradePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hist := append(c.trades[symbol], tp)
	if len(hist) > c.tradeSize {
		hist = hist[len(hist)-c.tradeSize:]
	}
	c.trades[symbol] = hist
}

// RecentTrades returns a copy of the symbol's trade history, oldest
// first.
func (c *MarketCache) RecentTrades(symbol string) []model.TradePoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hist := c.trades[symbol]
	if len(hist) == 0 {
		return nil
	}
	out := make([]model.TradePoint, len(hist))
	copy(out, hist)
	return out
}

// Clear drops all quotes and histories. Used by the reset command.
func (c *MarketCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = make(map[string]model.Quote)
	c.trades = make(map[string][]model.TradePoint)
}
