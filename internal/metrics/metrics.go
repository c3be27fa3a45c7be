// Package metrics provides Prometheus instrumentation for the simulator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DecisionCycles counts completed simulation cycles.
	DecisionCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashbook_decision_cycles_total",
		Help: "Completed agent decision cycles",
	})

	// OrdersSubmitted counts venue-accepted submissions by strategy.
	OrdersSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashbook_orders_submitted_total",
		Help: "Orders accepted by the venue",
	}, []string{"strategy"})

	// OrdersFailed counts submissions the venue rejected or that never
	// reached it.
	OrdersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flashbook_orders_failed_total",
		Help: "Order submissions that did not result in an order id",
	})

	// FillsApplied counts fills reconciled into agent state by role.
	FillsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashbook_fills_applied_total",
		Help: "Fills applied to agent accounting state",
	}, []string{"role"})

	// TradesSeen counts trade events consumed from the bus per symbol.
	TradesSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashbook_trades_seen_total",
		Help: "Trade events consumed from the bus",
	}, []string{"symbol"})

	// MessagesDropped counts undecodable or otherwise discarded bus
	// messages per listener.
	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashbook_messages_dropped_total",
		Help: "Bus messages dropped as malformed or unresolvable",
	}, []string{"listener"})

	// Reconnects counts listener resubscribe attempts after transport
	// failures.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flashbook_listener_reconnects_total",
		Help: "Listener reconnect/resubscribe attempts",
	}, []string{"listener"})

	// SimulationPaused is 1 while the simulation is paused.
	SimulationPaused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flashbook_simulation_paused",
		Help: "1 while the simulation loop is paused",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
