package collab

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker's closed set of states, spec.md
// §4.14/§7 item 8. No suitable breaker library appears anywhere in the
// example pack (grep across go.mod files turns up nothing), so this one
// piece is built on the standard sync.Mutex + timer idiom rather than a
// third-party dependency.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker guards an LLM provider against repeated failures,
// tripping open after failureThreshold consecutive failures and
// allowing one half-open probe after openMs elapses.
type circuitBreaker struct {
	mu               sync.Mutex
	state            breakerState
	failureThreshold int
	openMs           int64
	consecutiveFails int
	openedAt         time.Time
}

func newCircuitBreaker(failureThreshold int, openMs int64) *circuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openMs <= 0 {
		openMs = 30_000
	}
	return &circuitBreaker{failureThreshold: failureThreshold, openMs: openMs}
}

// allow reports whether a call may proceed, transitioning open->half_open
// once openMs has elapsed.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerHalfOpen:
		return true
	case breakerOpen:
		if time.Since(b.openedAt).Milliseconds() >= b.openMs {
			b.state = breakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// recordSuccess closes the breaker and resets the failure counter.
func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.consecutiveFails = 0
}

// recordFailure increments the failure counter and trips the breaker
// open once failureThreshold is reached, or immediately re-opens it if
// the half-open probe itself failed.
func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

func (b *circuitBreaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
