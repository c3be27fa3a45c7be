package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/JustinMoon-exe/Flashbook/internal/agent"
	"github.com/JustinMoon-exe/Flashbook/internal/metrics"
)

// Loop is the fixed-cadence orchestrator: each cycle fans
// DecideAndAct out across every agent, joins, then sleeps for the
// remainder of the interval.
type Loop struct {
	agents   []*agent.Agent
	gate     *Gate
	interval time.Duration
}

// NewLoop creates a simulation loop over the agent fleet.
func NewLoop(agents []*agent.Agent, gate *Gate, interval time.Duration) *Loop {
	return &Loop{agents: agents, gate: gate, interval: interval}
}

// Run cycles until ctx is cancelled. Cancellation is observed at the
// top of each cycle and during the inter-cycle sleep; a failure inside
// one agent's step never aborts the loop.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("simulation loop starting", "agents", len(l.agents), "interval", l.interval)
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("simulation loop shutting down")
			return err
		}
		if err := l.gate.Wait(ctx); err != nil {
			slog.Info("simulation loop shutting down")
			return err
		}

		start := time.Now()
		var wg sync.WaitGroup
		for _, ag := range l.agents {
			wg.Add(1)
			go func(ag *agent.Agent) {
				defer wg.Done()
				ag.DecideAndAct(ctx)
			}(ag)
		}
		wg.Wait()
		metrics.DecisionCycles.Inc()

		elapsed := time.Since(start)
		if remaining := l.interval - elapsed; remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				slog.Info("simulation loop shutting down")
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}
