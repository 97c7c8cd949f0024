// Package lanes implements the four named work lanes (search, fetch,
// parse, llm) that arbitrate concurrent work across the convergence
// pipeline, per spec.md §4.4 and §5.
package lanes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Name identifies one of the four fixed lanes.
type Name string

const (
	Search Name = "search"
	Fetch  Name = "fetch"
	Parse  Name = "parse"
	LLM    Name = "llm"
)

// ErrUnknownLane is returned for any lane name outside the closed set.
var ErrUnknownLane = errors.New("lanes: unknown lane")

// defaultConcurrency mirrors spec.md §6 "search:2, fetch:4, parse:4, llm:2".
var defaultConcurrency = map[Name]int{
	Search: 2,
	Fetch:  4,
	Parse:  4,
	LLM:    2,
}

// Task is a unit of lane work. It may suspend on any I/O boundary.
type Task func(ctx context.Context) (any, error)

// BudgetCheck gates whether a task may start; it runs synchronously before
// dispatch and must not block on I/O.
type BudgetCheck func() bool

// Snapshot reports one lane's observable counters.
type Snapshot struct {
	Lane           Name
	Concurrency    int
	Paused         bool
	Started        int64
	Completed      int64
	BudgetRejected int64
}

type lane struct {
	name           Name
	sem            *semaphore.Weighted
	concurrency    int64
	paused         atomic.Bool
	started        atomic.Int64
	completed      atomic.Int64
	budgetRejected atomic.Int64

	mu sync.Mutex
}

// Manager owns the four fixed lanes. Submission order within a lane is
// preserved FIFO; parallelism comes from multiple lanes and within-lane
// concurrency up to each lane's cap — spec.md §5.
type Manager struct {
	lanes map[Name]*lane
}

// New creates a Manager with the default per-lane concurrency caps.
func New() *Manager {
	m := &Manager{lanes: map[Name]*lane{}}
	for _, n := range []Name{Search, Fetch, Parse, LLM} {
		m.lanes[n] = &lane{
			name:        n,
			sem:         semaphore.NewWeighted(int64(defaultConcurrency[n])),
			concurrency: int64(defaultConcurrency[n]),
		}
	}
	return m
}

func (m *Manager) get(name Name) (*lane, error) {
	l, ok := m.lanes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLane, name)
	}
	return l, nil
}

// Dispatch runs task on the named lane, blocking the caller until the task
// completes (dispatch itself does not block on lane capacity beyond the
// concurrency cap; FIFO order is preserved by acquiring lane capacity in
// submission order before the task body runs).
func (m *Manager) Dispatch(ctx context.Context, name Name, task Task) (any, error) {
	l, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return l.run(ctx, task)
}

// DispatchWithBudget runs enforcer.check before attempting to acquire lane
// capacity. If check fails, the task never starts, budget_rejected is
// incremented, and (nil, nil) is returned per spec.md §4.4.
func (m *Manager) DispatchWithBudget(ctx context.Context, name Name, task Task, check BudgetCheck) (any, error) {
	l, err := m.get(name)
	if err != nil {
		return nil, err
	}
	if check != nil && !check() {
		l.budgetRejected.Add(1)
		return nil, nil
	}
	return l.run(ctx, task)
}

func (l *lane) run(ctx context.Context, task Task) (any, error) {
	if l.paused.Load() {
		// Pausing blocks only new starts; wait for resume or cancellation.
		for l.paused.Load() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
	}

	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	l.started.Add(1)
	result, err := task(ctx)
	l.completed.Add(1)
	return result, err
}

// Pause stops new task starts on the lane; in-flight tasks run to
// completion, per spec.md §4.4.
func (m *Manager) Pause(name Name) error {
	l, err := m.get(name)
	if err != nil {
		return err
	}
	l.paused.Store(true)
	return nil
}

// Resume allows new task starts again.
func (m *Manager) Resume(name Name) error {
	l, err := m.get(name)
	if err != nil {
		return err
	}
	l.paused.Store(false)
	return nil
}

// SetConcurrency reconfigures the lane's concurrency cap, clamped to at
// least 1, per spec.md §4.4.
func (m *Manager) SetConcurrency(name Name, n int) error {
	l, err := m.get(name)
	if err != nil {
		return err
	}
	if n < 1 {
		n = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sem = semaphore.NewWeighted(int64(n))
	l.concurrency = int64(n)
	return nil
}

// Drain blocks until every lane has no tasks in flight. It is approximate:
// it polls started/completed counters rather than using a true barrier,
// matching the "in-flight tasks survive their round" cancellation model in
// spec.md §5 (drain observes quiescence, it does not cancel anything).
func (m *Manager) Drain(ctx context.Context) error {
	for _, name := range []Name{Search, Fetch, Parse, LLM} {
		l := m.lanes[name]
		for l.started.Load() != l.completed.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
	return nil
}

// Snapshot reports the named lane's counters.
func (m *Manager) Snapshot(name Name) (Snapshot, error) {
	l, err := m.get(name)
	if err != nil {
		return Snapshot{}, err
	}
	l.mu.Lock()
	concurrency := l.concurrency
	l.mu.Unlock()
	return Snapshot{
		Lane:           name,
		Concurrency:    int(concurrency),
		Paused:         l.paused.Load(),
		Started:        l.started.Load(),
		Completed:      l.completed.Load(),
		BudgetRejected: l.budgetRejected.Load(),
	}, nil
}

// AllSnapshots reports all four lanes' counters.
func (m *Manager) AllSnapshots() []Snapshot {
	out := make([]Snapshot, 0, 4)
	for _, name := range []Name{Search, Fetch, Parse, LLM} {
		snap, _ := m.Snapshot(name)
		out = append(out, snap)
	}
	return out
}
