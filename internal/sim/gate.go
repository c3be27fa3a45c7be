// Package sim drives the simulation: the pause/resume gate, the
// fixed-cadence decision loop, and the periodic stats publisher.
package sim

import (
	"context"
	"sync"

	"github.com/JustinMoon-exe/Flashbook/internal/metrics"
)

// Gate is the shared pause flag. Tasks call Wait at the top of their
// cycle; while paused they block until Resume or cancellation.
type Gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{} // closed on resume, replaced on pause
}

// NewGate creates a gate, optionally starting paused.
func NewGate(startPaused bool) *Gate {
	g := &Gate{paused: startPaused, resume: make(chan struct{})}
	if !startPaused {
		close(g.resume)
	}
	if startPaused {
		metrics.SimulationPaused.Set(1)
	}
	return g
}

// Pause suspends the gated tasks at their next Wait.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.resume = make(chan struct{})
	metrics.SimulationPaused.Set(1)
}

// Resume releases every task blocked in Wait.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.resume)
	metrics.SimulationPaused.Set(0)
}

// Paused reports the current state.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait blocks while the gate is paused. Returns ctx.Err() on
// cancellation, nil once running.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			return nil
		}
		resume := g.resume
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resume:
		}
	}
}
