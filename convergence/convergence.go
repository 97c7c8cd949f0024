// Package convergence implements the round-by-round driver (C11) that
// schedules discovery/fetch/parse through the lane manager, re-runs
// consensus and the reducers, recomputes the need-set, and decides when
// to stop, per spec.md §4.11. The round loop is modeled on the teacher
// engine's reasoning.Engine.Reason multi-round driver (reasoning/reasoning.go),
// generalized from Q&A rounds to extraction rounds.
package convergence

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Mode is the closed mode-progression enum, spec.md §4.11.
type Mode string

const (
	Bootstrap     Mode = "bootstrap"
	Balanced      Mode = "balanced"
	Aggressive    Mode = "aggressive"
	UberAggressive Mode = "uber_aggressive"
)

var modeOrder = []Mode{Bootstrap, Balanced, Aggressive, UberAggressive}

// Next returns the next mode in the progression, staying at
// uber_aggressive once reached.
func (m Mode) Next() Mode {
	for i, v := range modeOrder {
		if v == m && i < len(modeOrder)-1 {
			return modeOrder[i+1]
		}
	}
	return UberAggressive
}

// StopReason is the closed set from spec.md §6 "Stop reasons".
type StopReason string

const (
	ReasonSatisfied         StopReason = "required_and_critical_satisfied"
	ReasonMaxRounds         StopReason = "max_rounds_reached"
	ReasonTimeBudget        StopReason = "time_budget_exceeded"
	ReasonDiminishingReturns StopReason = "diminishing_returns"
	ReasonContinue          StopReason = "continue"
)

// RoundState is the per-round state record, spec.md §4.11.
type RoundState struct {
	Round                 int
	Mode                  Mode
	NeedsetSize           int
	MissingRequiredCount  int
	CriticalCount         int
	Confidence            float64
	Validated             bool
	Improved              bool
	ImprovementReasons    []string
	NoProgressStreak      int
	LowQualityRounds      int
}

// Config bounds the loop, spec.md §4.11 stop-decision table.
type Config struct {
	MaxRounds int
	MaxMs     int64
}

// RoundFn runs one full round of discovery→fetch→index→consensus→needset
// and returns the resulting state, or an error if the round itself
// failed (a lane error, a store error). The convergence loop does not
// interpret the substeps; it only evaluates the returned state against
// the stop-decision table.
type RoundFn func(ctx context.Context, round int, mode Mode) (RoundState, error)

// EventSink receives convergence_round_started/completed/stop events,
// per spec.md §4.13. Implementations typically wrap an *events.Bus.
type EventSink interface {
	Emit(stage, event string, payload map[string]any) error
}

// Engine drives the round loop for one product.
type Engine struct {
	cfg   Config
	sink  EventSink
}

// New creates a convergence Engine with the given bounds. MaxRounds
// defaults to 8, MaxMs to 10 minutes, mirroring the teacher's Config
// zero-value defaulting style (reasoning.New).
func New(cfg Config, sink EventSink) *Engine {
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 8
	}
	if cfg.MaxMs == 0 {
		cfg.MaxMs = 10 * 60 * 1000
	}
	return &Engine{cfg: cfg, sink: sink}
}

// Result is Run's return value: the final round state plus why the loop
// stopped.
type Result struct {
	FinalState RoundState
	StopReason StopReason
	Rounds     int
}

// Run drives rounds until uber_stop_decision fires, per spec.md §4.11.
// Cancellation is checked between rounds, not mid-round: an in-flight
// round always completes and its result is evaluated once, even if the
// context is cancelled partway through.
func (e *Engine) Run(ctx context.Context, round RoundFn) (Result, error) {
	start := time.Now()
	mode := Bootstrap
	var state RoundState
	var noNewHighYieldRounds, noNewFieldsRounds int

	for roundNum := 1; ; roundNum++ {
		if err := ctx.Err(); err != nil {
			return Result{FinalState: state, Rounds: roundNum - 1}, fmt.Errorf("convergence: cancelled before round %d: %w", roundNum, err)
		}
		e.emit("convergence", "convergence_round_started", map[string]any{"round": roundNum, "mode": string(mode)})

		slog.Info("convergence: round starting", "round", roundNum, "mode", mode)
		next, err := round(ctx, roundNum, mode)
		if err != nil {
			return Result{}, fmt.Errorf("convergence: round %d failed: %w", roundNum, err)
		}
		next.Round = roundNum
		next.Mode = mode
		state = next

		e.emit("convergence", "convergence_round_completed", map[string]any{
			"round": roundNum, "mode": string(mode),
			"needset_size": state.NeedsetSize, "confidence": state.Confidence,
		})

		if !state.Improved {
			noNewHighYieldRounds++
			noNewFieldsRounds++
		} else {
			noNewHighYieldRounds = 0
			noNewFieldsRounds = 0
		}

		elapsedMs := time.Since(start).Milliseconds()
		reason := uberStopDecision(state, roundNum, e.cfg, elapsedMs, noNewHighYieldRounds, noNewFieldsRounds)
		if reason != ReasonContinue {
			e.emit("convergence", "convergence_stop", map[string]any{
				"round": roundNum, "stop_reason": string(reason),
				"complete": reason == ReasonSatisfied,
			})
			return Result{FinalState: state, StopReason: reason, Rounds: roundNum}, nil
		}

		mode = mode.Next()
	}
}

func (e *Engine) emit(stage, event string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Emit(stage, event, payload); err != nil {
		slog.Warn("convergence: event emit failed", "stage", stage, "event", event, "error", err)
	}
}

// uberStopDecision implements spec.md §4.11's stop-decision table in
// the documented precedence order.
func uberStopDecision(state RoundState, round int, cfg Config, elapsedMs int64, noNewHighYieldRounds, noNewFieldsRounds int) StopReason {
	if state.MissingRequiredCount == 0 && state.CriticalCount == 0 {
		return ReasonSatisfied
	}
	if round >= cfg.MaxRounds {
		return ReasonMaxRounds
	}
	if elapsedMs > cfg.MaxMs {
		return ReasonTimeBudget
	}
	if noNewHighYieldRounds >= 2 && noNewFieldsRounds >= 2 {
		return ReasonDiminishingReturns
	}
	return ReasonContinue
}
