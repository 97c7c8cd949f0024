// Package hostbudget tracks per-host outcome counters, health, and backoff
// scheduling for the convergence engine's fetch pipeline (spec.md §4.3).
package hostbudget

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Outcome is one of the ten closed outcome keys from spec.md §3.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeBlocked        Outcome = "blocked"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeLoginWall      Outcome = "login_wall"
	OutcomeBotChallenge   Outcome = "bot_challenge"
	OutcomeBadContent     Outcome = "bad_content"
	OutcomeServerError    Outcome = "server_error"
	OutcomeNetworkTimeout Outcome = "network_timeout"
	OutcomeFetchError     Outcome = "fetch_error"
)

// backoffOutcomes is the subset of outcomes that schedule next_retry_ts,
// per spec.md §4.3.
var backoffOutcomes = map[Outcome]bool{
	OutcomeRateLimited:    true,
	OutcomeBlocked:        true,
	OutcomeBotChallenge:   true,
	OutcomeNetworkTimeout: true,
	OutcomeServerError:    true,
}

// State is the derived host state from resolve_state, spec.md §4.3.
type State string

const (
	StateOpen     State = "open"
	StateActive   State = "active"
	StateDegraded State = "degraded"
	StateBackoff  State = "backoff"
	StateBlocked  State = "blocked"
)

// Row is the per-host outcome/health record, keyed by normalized host.
type Row struct {
	Host            string
	StartedCount    int
	CompletedCount  int
	DedupeHits      int
	EvidenceUsed    int
	ParseFailCount  int
	OutcomeCounts   map[Outcome]int
	NextRetryTs     time.Time
}

func newRow(host string) *Row {
	return &Row{Host: host, OutcomeCounts: map[Outcome]int{}}
}

// clone returns a value copy so callers never hold a reference into the
// tracker's internal map — spec.md §9 "never hand out internal references".
func (r *Row) clone() Row {
	out := Row{
		Host:           r.Host,
		StartedCount:   r.StartedCount,
		CompletedCount: r.CompletedCount,
		DedupeHits:     r.DedupeHits,
		EvidenceUsed:   r.EvidenceUsed,
		ParseFailCount: r.ParseFailCount,
		NextRetryTs:    r.NextRetryTs,
		OutcomeCounts:  make(map[Outcome]int, len(r.OutcomeCounts)),
	}
	for k, v := range r.OutcomeCounts {
		out.OutcomeCounts[k] = v
	}
	return out
}

// Resolved bundles resolve_state's output.
type Resolved struct {
	State           State
	Score           int
	CooldownSeconds int
}

// Tracker is a single-owner, mutex-guarded actor over per-host rows. It
// never returns pointers into its internal state.
type Tracker struct {
	mu       sync.RWMutex
	rows     map[string]*Row
	limiters map[string]*rate.Limiter
}

// New creates an empty host-budget tracker.
func New() *Tracker {
	return &Tracker{
		rows:     map[string]*Row{},
		limiters: map[string]*rate.Limiter{},
	}
}

// NormalizeHost lowercases and strips a leading "www." per spec.md §3.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(h, "www.")
}

func (t *Tracker) row(host string) *Row {
	host = NormalizeHost(host)
	r, ok := t.rows[host]
	if !ok {
		r = newRow(host)
		t.rows[host] = r
	}
	return r
}

// Started increments started_count, marking the host active.
func (t *Tracker) Started(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.row(host).StartedCount++
}

// Completed increments completed_count.
func (t *Tracker) Completed(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.row(host).CompletedCount++
}

// BumpOutcome implements spec.md §4.3 bump_outcome: monotonic counter
// increment for the closed outcome set.
func (t *Tracker) BumpOutcome(host string, outcome Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.row(host)
	r.OutcomeCounts[outcome]++
	if outcome == OutcomeBadContent {
		r.ParseFailCount++
	}
}

// RecordDedupeHit increments dedupe_hits.
func (t *Tracker) RecordDedupeHit(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.row(host).DedupeHits++
}

// RecordEvidenceUsed increments evidence_used.
func (t *Tracker) RecordEvidenceUsed(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.row(host).EvidenceUsed++
}

// ApplyBackoff implements spec.md §4.3 apply_backoff: schedules
// next_retry_ts only for the backoff-eligible outcome subset, honoring a
// write-once-per-step monotonic-max rule (earlier timestamps never
// overwrite later ones).
func (t *Tracker) ApplyBackoff(host string, outcome Outcome, nowMs int64, cooldown time.Duration) {
	if !backoffOutcomes[outcome] {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.row(host)
	candidate := time.UnixMilli(nowMs).Add(cooldown)
	if candidate.After(r.NextRetryTs) {
		r.NextRetryTs = candidate
	}
	// Mirror the backoff into a token-bucket limiter so `lanes` can check
	// real rate-limiting state, not just the bookkeeping timestamp.
	lim, ok := t.limiters[r.Host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(cooldown), 1)
		t.limiters[r.Host] = lim
	} else {
		lim.SetLimit(rate.Every(cooldown))
	}
}

// Allow reports whether a fetch to host may proceed right now according to
// the rate limiter installed by the most recent backoff. Hosts never
// backed off always allow.
func (t *Tracker) Allow(host string) bool {
	t.mu.RLock()
	lim, ok := t.limiters[NormalizeHost(host)]
	t.mu.RUnlock()
	if !ok {
		return true
	}
	return lim.Allow()
}

// ResolveState implements spec.md §4.3 resolve_state.
func (t *Tracker) ResolveState(host string, now time.Time) Resolved {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[NormalizeHost(host)]
	if !ok {
		return Resolved{State: StateOpen, Score: 100}
	}
	return resolveState(r, now)
}

func resolveState(r *Row, now time.Time) Resolved {
	score := computeScore(r)
	cooldownSeconds := 0
	if !r.NextRetryTs.IsZero() && r.NextRetryTs.After(now) {
		cooldownSeconds = int(r.NextRetryTs.Sub(now).Seconds())
	}

	backoffTrio := r.OutcomeCounts[OutcomeBlocked] + r.OutcomeCounts[OutcomeRateLimited] + r.OutcomeCounts[OutcomeBotChallenge]

	switch {
	case !r.NextRetryTs.IsZero() && r.NextRetryTs.After(now) && backoffTrio >= 3:
		return Resolved{State: StateBlocked, Score: score, CooldownSeconds: cooldownSeconds}
	case !r.NextRetryTs.IsZero() && r.NextRetryTs.After(now):
		return Resolved{State: StateBackoff, Score: score, CooldownSeconds: cooldownSeconds}
	case r.StartedCount > r.CompletedCount:
		return Resolved{State: StateActive, Score: score}
	case r.OutcomeCounts[OutcomeBadContent] > 0 || r.ParseFailCount > 0:
		return Resolved{State: StateDegraded, Score: score}
	default:
		return Resolved{State: StateOpen, Score: score}
	}
}

// computeScore implements the weighted score formula from spec.md §4.3:
// starts at 100, subtracts weighted bad-outcome sums, adds min(20, ok_count).
func computeScore(r *Row) int {
	score := 100
	weights := map[Outcome]int{
		OutcomeBlocked:        10,
		OutcomeRateLimited:    5,
		OutcomeBotChallenge:   8,
		OutcomeBadContent:     3,
		OutcomeServerError:    4,
		OutcomeNetworkTimeout: 3,
		OutcomeFetchError:     2,
		OutcomeLoginWall:      6,
	}
	for outcome, weight := range weights {
		score -= weight * r.OutcomeCounts[outcome]
	}
	ok := r.OutcomeCounts[OutcomeOK]
	bonus := ok
	if bonus > 20 {
		bonus = 20
	}
	score += bonus
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Snapshot returns a read-only copy of a host's row for diagnostics.
func (t *Tracker) Snapshot(host string) Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rows[NormalizeHost(host)]
	if !ok {
		return Row{Host: NormalizeHost(host), OutcomeCounts: map[Outcome]int{}}
	}
	return r.clone()
}
