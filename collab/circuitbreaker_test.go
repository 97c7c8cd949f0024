package collab

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newCircuitBreaker(3, 30_000)
	for i := 0; i < 3; i++ {
		if !b.allow() {
			t.Fatalf("expected allow before threshold reached, iteration %d", i)
		}
		b.recordFailure()
	}
	if b.currentState() != breakerOpen {
		t.Fatalf("expected breaker open after %d failures, got state %v", 3, b.currentState())
	}
	if b.allow() {
		t.Fatal("expected allow to return false while breaker is open and openMs has not elapsed")
	}
}

func TestBreakerClosesOnSuccess(t *testing.T) {
	b := newCircuitBreaker(2, 30_000)
	b.recordFailure()
	if b.currentState() != breakerClosed {
		t.Fatalf("expected breaker still closed after 1 of 2 failures, got %v", b.currentState())
	}
	b.recordSuccess()
	if b.consecutiveFails != 0 {
		t.Fatalf("expected recordSuccess to reset failure count, got %d", b.consecutiveFails)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newCircuitBreaker(1, 1)
	b.recordFailure()
	if b.currentState() != breakerOpen {
		t.Fatal("expected breaker open after single failure with threshold 1")
	}
	time.Sleep(2 * time.Millisecond)
	if !b.allow() {
		t.Fatal("expected allow to transition to half_open once openMs has elapsed")
	}
	if b.currentState() != breakerHalfOpen {
		t.Fatal("expected state half_open after allow following elapsed openMs")
	}
	b.recordFailure()
	if b.currentState() != breakerOpen {
		t.Fatal("expected a half-open probe failure to re-open the breaker")
	}
}
