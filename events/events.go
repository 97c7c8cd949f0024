// Package events implements the append-only NDJSON event bus and the
// run.json rollup writer (C13), per spec.md §4.13.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope is the fixed five-key NDJSON record every event carries,
// spec.md §4.13.
type Envelope struct {
	RunID   string         `json:"run_id"`
	Ts      string         `json:"ts"`
	Stage   string         `json:"stage"`
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// DedupeOutcomeEvent maps evidence.DedupeOutcome values to their fixed
// event names, per spec.md §4.13.
var DedupeOutcomeEvent = map[string]string{
	"new":     "indexed_new",
	"reused":  "dedupe_hit",
	"updated": "dedupe_updated",
}

// Bus appends NDJSON event envelopes to a run directory and maintains the
// run.json rollup.
type Bus struct {
	mu      sync.Mutex
	runID   string
	dir     string
	file    *os.File
	rollup  *Rollup
}

// Rollup is run.json's shape: counters, stage timestamps, identity
// metadata, and startup_ms, per spec.md §4.13.
type Rollup struct {
	RunID          string            `json:"run_id"`
	StartedAt      string            `json:"started_at"`
	StartupMs      int64             `json:"startup_ms"`
	PagesChecked   int               `json:"pages_checked"`
	FetchedOK      int               `json:"fetched_ok"`
	ParseCompleted int               `json:"parse_completed"`
	FieldsFilled   int               `json:"fields_filled"`
	StageStarts    map[string]string `json:"stage_starts"`
	StageEnds      map[string]string `json:"stage_ends"`
	IdentityStatus string            `json:"identity_status,omitempty"`
}

// New creates a run directory (if needed) and opens its events.ndjson for
// append, generating a fresh run_id via google/uuid.
func New(runDir string) (*Bus, error) {
	return NewWithRunID(runDir, uuid.NewString())
}

// NewWithRunID is New, but with an explicit run_id instead of a generated
// one. Callers that need to know the run directory name before the bus
// exists (to lay out specs/outputs/{category}/{product_id}/runs/{run_id}/
// directly, per spec.md §6, rather than renaming a placeholder afterward)
// generate the id themselves and pass it in here.
func NewWithRunID(runDir, runID string) (*Bus, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("events: creating run dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(runDir, "events.ndjson"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("events: opening events.ndjson: %w", err)
	}
	return &Bus{
		runID: runID,
		dir:   runDir,
		file:  f,
		rollup: &Rollup{
			RunID:       runID,
			StartedAt:   time.Now().UTC().Format(time.RFC3339),
			StageStarts: map[string]string{},
			StageEnds:   map[string]string{},
		},
	}, nil
}

// RunID returns the bus's generated run identifier.
func (b *Bus) RunID() string {
	return b.runID
}

// Emit appends one event envelope, filling run_id/ts automatically.
// payload is never nil on the wire: a nil map is written as {}.
func (b *Bus) Emit(stage, event string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	env := Envelope{
		RunID:   b.runID,
		Ts:      time.Now().UTC().Format(time.RFC3339),
		Stage:   stage,
		Event:   event,
		Payload: payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshaling envelope: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("events: appending event: %w", err)
	}
	return nil
}

// StageStarted records a stage's start timestamp in the rollup and emits
// the corresponding event.
func (b *Bus) StageStarted(stage string, payload map[string]any) error {
	b.mu.Lock()
	b.rollup.StageStarts[stage] = time.Now().UTC().Format(time.RFC3339)
	b.mu.Unlock()
	return b.Emit(stage, stage+"_started", payload)
}

// StageCompleted records a stage's end timestamp in the rollup and emits
// the corresponding event.
func (b *Bus) StageCompleted(stage string, payload map[string]any) error {
	b.mu.Lock()
	b.rollup.StageEnds[stage] = time.Now().UTC().Format(time.RFC3339)
	b.mu.Unlock()
	return b.Emit(stage, stage+"_completed", payload)
}

// EmitDedupeOutcome maps a dedupe outcome string ("new"/"reused"/"updated")
// to its fixed event name and emits it, per spec.md §4.13.
func (b *Bus) EmitDedupeOutcome(stage, outcome string, payload map[string]any) error {
	name, ok := DedupeOutcomeEvent[outcome]
	if !ok {
		name = outcome
	}
	return b.Emit(stage, name, payload)
}

// IncPagesChecked, IncFetchedOK, IncParseCompleted, and AddFieldsFilled
// update run.json's running counters.
func (b *Bus) IncPagesChecked()   { b.mu.Lock(); b.rollup.PagesChecked++; b.mu.Unlock() }
func (b *Bus) IncFetchedOK()      { b.mu.Lock(); b.rollup.FetchedOK++; b.mu.Unlock() }
func (b *Bus) IncParseCompleted() { b.mu.Lock(); b.rollup.ParseCompleted++; b.mu.Unlock() }
func (b *Bus) AddFieldsFilled(n int) {
	b.mu.Lock()
	b.rollup.FieldsFilled += n
	b.mu.Unlock()
}

// SetStartupMs records how long engine bootstrap took before round 1.
func (b *Bus) SetStartupMs(ms int64) {
	b.mu.Lock()
	b.rollup.StartupMs = ms
	b.mu.Unlock()
}

// SetIdentityStatus records the run's identity-lock status in the rollup.
func (b *Bus) SetIdentityStatus(status string) {
	b.mu.Lock()
	b.rollup.IdentityStatus = status
	b.mu.Unlock()
}

// FlushRollup writes run.json atomically (write-temp, rename), matching
// the frontier store's durability pattern (SPEC_FULL.md §3.2/§3.13).
func (b *Bus) FlushRollup() error {
	b.mu.Lock()
	data, err := json.MarshalIndent(b.rollup, "", "  ")
	b.mu.Unlock()
	if err != nil {
		return fmt.Errorf("events: marshaling rollup: %w", err)
	}

	finalPath := filepath.Join(b.dir, "run.json")
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("events: writing rollup temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("events: renaming rollup file: %w", err)
	}
	return nil
}

// Close flushes the rollup and closes the NDJSON file.
func (b *Bus) Close() error {
	if err := b.FlushRollup(); err != nil {
		return err
	}
	return b.file.Close()
}
