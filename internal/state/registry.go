// Package state holds the process-wide shared containers: the order
// registry, the per-symbol market cache with its bounded trade history,
// the price-override table, and the aggregate exchange statistics.
//
// Each container carries its own narrow lock; hold times are a single
// map read or write and never span a network call.
package state

import (
	"sync"

	"github.com/JustinMoon-exe/Flashbook/internal/model"
)

// OrderRegistry maps in-flight order ids to their originating agent and
// order details. Entries are written when the venue accepts a
// submission and are never deleted outside of a reset, so consumers
// must tolerate stale and missing ids.
type OrderRegistry struct {
	mu     sync.Mutex
	orders map[string]model.OrderRecord
}

// NewOrderRegistry creates an empty registry.
func NewOrderRegistry() *OrderRegistry {
	return &OrderRegistry{orders: make(map[string]model.OrderRecord)}
}

// Put records an accepted submission under its venue-assigned id.
func (r *OrderRegistry) Put(orderID string, rec model.OrderRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[orderID] = rec
}

// Lookup returns the record for orderID if one exists.
func (r *OrderRegistry) Lookup(orderID string) (model.OrderRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.orders[orderID]
	return rec, ok
}

// Len returns the number of tracked orders.
func (r *OrderRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// Clear drops every entry. Used by the reset command.
func (r *OrderRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = make(map[string]model.OrderRecord)
}
