package convergence

import (
	"context"
	"testing"
)

type recordingSink struct {
	events []string
}

func (r *recordingSink) Emit(stage, event string, payload map[string]any) error {
	r.events = append(r.events, event)
	return nil
}

func TestRunStopsWhenSatisfied(t *testing.T) {
	sink := &recordingSink{}
	e := New(Config{MaxRounds: 5}, sink)

	result, err := e.Run(context.Background(), func(ctx context.Context, round int, mode Mode) (RoundState, error) {
		return RoundState{MissingRequiredCount: 0, CriticalCount: 0, Improved: true}, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.StopReason != ReasonSatisfied {
		t.Fatalf("expected satisfied, got %s", result.StopReason)
	}
	if result.Rounds != 1 {
		t.Fatalf("expected to stop after round 1, got %d", result.Rounds)
	}
}

func TestRunStopsAtMaxRounds(t *testing.T) {
	e := New(Config{MaxRounds: 3}, nil)
	result, err := e.Run(context.Background(), func(ctx context.Context, round int, mode Mode) (RoundState, error) {
		return RoundState{MissingRequiredCount: 1, Improved: true}, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.StopReason != ReasonMaxRounds {
		t.Fatalf("expected max_rounds_reached, got %s", result.StopReason)
	}
	if result.Rounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", result.Rounds)
	}
}

func TestRunStopsOnDiminishingReturns(t *testing.T) {
	e := New(Config{MaxRounds: 10}, nil)
	result, err := e.Run(context.Background(), func(ctx context.Context, round int, mode Mode) (RoundState, error) {
		return RoundState{MissingRequiredCount: 1, Improved: false}, nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.StopReason != ReasonDiminishingReturns {
		t.Fatalf("expected diminishing_returns, got %s", result.StopReason)
	}
	if result.Rounds != 2 {
		t.Fatalf("expected diminishing_returns to fire at round 2 (2 consecutive no-improve rounds), got %d", result.Rounds)
	}
}

func TestModeProgressionAdvancesAndCaps(t *testing.T) {
	if Bootstrap.Next() != Balanced {
		t.Fatal("expected bootstrap -> balanced")
	}
	if UberAggressive.Next() != UberAggressive {
		t.Fatal("expected uber_aggressive to stay capped")
	}
}

func TestRunPropagatesRoundError(t *testing.T) {
	e := New(Config{}, nil)
	_, err := e.Run(context.Background(), func(ctx context.Context, round int, mode Mode) (RoundState, error) {
		return RoundState{}, errBoom
	})
	if err == nil {
		t.Fatal("expected round error to propagate")
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
