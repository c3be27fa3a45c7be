package state

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type override struct {
	mid    decimal.Decimal
	expiry time.Time
}

// OverrideTable maps symbols to a forced mid-price with an expiry,
// used to simulate exogenous market shocks. Expired entries are
// treated as absent on read but never proactively purged; the table
// stays bounded by the symbol set.
type OverrideTable struct {
	mu        sync.RWMutex
	overrides map[string]override
}

// NewOverrideTable creates an empty table.
func NewOverrideTable() *OverrideTable {
	return &OverrideTable{overrides: make(map[string]override)}
}

// Set installs a forced mid for symbol until expiry, replacing any
// existing entry.
func (t *OverrideTable) Set(symbol string, mid decimal.Decimal, expiry time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrides[symbol] = override{mid: mid, expiry: expiry}
}

// Mid returns the forced mid for symbol if one is installed and has
// not expired as of now, else nil.
func (t *OverrideTable) Mid(symbol string, now time.Time) *decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	o, ok := t.overrides[symbol]
	if !ok || !now.Before(o.expiry) {
		return nil
	}
	mid := o.mid
	return &mid
}

// Clear drops every entry. Used by the reset command.
func (t *OverrideTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrides = make(map[string]override)
}
