// Package model defines the domain types shared across the simulator.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is an order side as it appears on the wire.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Quote is the best-bid/offer snapshot for one symbol. A quote event
// overwrites the cached entry wholesale; there are no merge semantics.
// Either side may be absent when the book is one-sided.
type Quote struct {
	Symbol    string           `json:"symbol"`
	BidPrice  *decimal.Decimal `json:"bid_price"`
	BidQty    int64            `json:"bid_qty"`
	AskPrice  *decimal.Decimal `json:"ask_price"`
	AskQty    int64            `json:"ask_qty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Mid returns the midpoint of the quote, or nil if both sides are empty.
// With only one side present, that side's price stands in for the mid.
func (q *Quote) Mid() *decimal.Decimal {
	if q == nil {
		return nil
	}
	switch {
	case q.BidPrice != nil && q.AskPrice != nil:
		mid := q.BidPrice.Add(*q.AskPrice).Div(decimal.NewFromInt(2))
		return &mid
	case q.BidPrice != nil:
		return q.BidPrice
	case q.AskPrice != nil:
		return q.AskPrice
	}
	return nil
}

// Trade is a trade-execution event emitted by the matching venue.
type Trade struct {
	TradeID      string          `json:"trade_id"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int64           `json:"quantity"`
	Timestamp    time.Time       `json:"timestamp"`
	TakerOrderID string          `json:"taker_order_id"`
	MakerOrderID string          `json:"maker_order_id"`
}

// TradePoint is one entry of a symbol's bounded recent-trade history.
type TradePoint struct {
	Price     decimal.Decimal
	Quantity  int64
	Timestamp time.Time
}

// OrderRequest is an order submission bound for the venue. Price is nil
// for market-style orders.
type OrderRequest struct {
	Symbol   string           `json:"symbol"`
	Side     Side             `json:"side"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	Quantity int64            `json:"quantity"`
}

// OrderRecord is what the order registry keeps for every accepted
// submission: enough to route a later fill back to its owner.
type OrderRecord struct {
	AgentID  string
	Symbol   string
	Side     Side
	Price    *decimal.Decimal
	Quantity int64
}
