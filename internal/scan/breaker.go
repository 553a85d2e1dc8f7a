package scan

import (
	"context"
	"sync"

	"intraday-scanner/internal/logger"
)

// CircuitBreaker owns the session-scoped stop-loss exit counter. Once the
// count reaches the configured limit, signal stages are halted for the rest
// of the session unless a manual override is set. The override is a separate
// flag: clearing it re-arms the breaker against the unchanged count.
type CircuitBreaker struct {
	mu         sync.Mutex
	limit      int
	count      int
	overridden bool
}

// NewCircuitBreaker creates a breaker with the configured stop-loss limit.
func NewCircuitBreaker(limit int) *CircuitBreaker {
	return &CircuitBreaker{limit: limit}
}

// RecordStopLossExit increments the session stop-loss counter. Called by the
// exit monitor; no other component mutates the count.
func (cb *CircuitBreaker) RecordStopLossExit() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.count++
	return cb.count
}

// StopLossCount returns the current session count.
func (cb *CircuitBreaker) StopLossCount() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.count
}

// Tripped reports whether new signals should be halted.
func (cb *CircuitBreaker) Tripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.count >= cb.limit && !cb.overridden
}

// SetOverride enables or disables the manual override without touching the
// underlying count.
func (cb *CircuitBreaker) SetOverride(on bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.overridden = on
}

// Reset clears the counter and override at session rollover.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.count = 0
	cb.overridden = false
}

// BreakerGate is the first signal stage: it flips the cycle's accept flag
// off when the breaker has tripped.
type BreakerGate struct {
	breaker *CircuitBreaker
}

// NewBreakerGate wraps a circuit breaker as a pipeline stage.
func NewBreakerGate(cb *CircuitBreaker) *BreakerGate {
	return &BreakerGate{breaker: cb}
}

func (g *BreakerGate) Name() string { return "circuit_breaker_gate" }

func (g *BreakerGate) Process(ctx context.Context, sc *Context) error {
	if g.breaker.Tripped() {
		sc.AcceptNewSignals = false
		logger.Warn(ctx, "Circuit breaker tripped, halting new signals",
			"stop_loss_count", g.breaker.StopLossCount(),
		)
	}
	return nil
}
