package lanes

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchRunsTaskAndReturnsResult(t *testing.T) {
	m := New()
	result, err := m.Dispatch(context.Background(), Fetch, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if result != "ok" {
		t.Fatalf("unexpected result: %v", result)
	}
}

func TestUnknownLaneFailsFast(t *testing.T) {
	m := New()
	_, err := m.Dispatch(context.Background(), Name("bogus"), func(ctx context.Context) (any, error) {
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected error for unknown lane")
	}
}

func TestDispatchWithBudgetRejectsAndIncrementsCounter(t *testing.T) {
	m := New()
	ran := false
	result, err := m.DispatchWithBudget(context.Background(), Search, func(ctx context.Context) (any, error) {
		ran = true
		return nil, nil
	}, func() bool { return false })
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Fatalf("expected nil result on budget rejection, got %v", result)
	}
	if ran {
		t.Fatal("task must not run when budget check fails")
	}
	snap, _ := m.Snapshot(Search)
	if snap.BudgetRejected != 1 {
		t.Fatalf("expected budget_rejected=1, got %d", snap.BudgetRejected)
	}
}

func TestConcurrencyCapEnforced(t *testing.T) {
	m := New()
	if err := m.SetConcurrency(Fetch, 1); err != nil {
		t.Fatal(err)
	}

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	done := make(chan struct{})

	for i := 0; i < 3; i++ {
		go func() {
			m.Dispatch(context.Background(), Fetch, func(ctx context.Context) (any, error) {
				cur := inFlight.Add(1)
				for {
					max := maxSeen.Load()
					if cur <= max || maxSeen.CompareAndSwap(max, cur) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				inFlight.Add(-1)
				return nil, nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	if maxSeen.Load() > 1 {
		t.Fatalf("concurrency cap violated, saw %d in flight", maxSeen.Load())
	}
}

func TestPauseBlocksNewStartsNotInFlight(t *testing.T) {
	m := New()
	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		m.Dispatch(context.Background(), Parse, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	if err := m.Pause(Parse); err != nil {
		t.Fatal(err)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.Dispatch(ctx, Parse, func(ctx context.Context) (any, error) {
		return "should-not-run", nil
	})
	if err == nil {
		t.Fatal("expected dispatch to block while paused and hit context deadline")
	}
}
