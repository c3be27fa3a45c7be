package agent

// TrackOpen inserts an order id into the open-order set, standing in
// for an accepted submission in tests that drive fills directly.
func (a *Agent) TrackOpen(orderID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openOrders[orderID] = struct{}{}
}
