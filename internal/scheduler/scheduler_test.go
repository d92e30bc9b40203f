package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// blockingEngine parks RunSyncCycle until release is closed, so tests can
// hold a cycle open.
type blockingEngine struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingEngine) RunSyncCycle(ctx context.Context) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	b.started <- struct{}{}
	<-b.release
	return nil
}

func (b *blockingEngine) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type countingAnalysis struct {
	mu    sync.Mutex
	calls int
}

func (c *countingAnalysis) ProcessPendingMeals(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return nil
}

func TestRunCycleSkipsOverlappingTick(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	analysis := &countingAnalysis{}
	s := New(engine, analysis, time.Minute, zerolog.Nop())

	done := make(chan bool, 1)
	go func() { done <- s.RunCycle(context.Background()) }()
	<-engine.started

	// a tick that fires mid-cycle reports false and never touches the engine
	if s.RunCycle(context.Background()) {
		t.Fatal("overlapping cycle was not skipped")
	}
	if got := engine.callCount(); got != 1 {
		t.Fatalf("engine ran %d times during overlap, want 1", got)
	}

	close(engine.release)
	if !<-done {
		t.Fatal("first cycle reported skipped")
	}
	if analysis.calls != 1 {
		t.Fatalf("analysis ran %d times, want 1", analysis.calls)
	}
}

func TestRunCycleRunsAgainAfterCompletion(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{}, 2), release: make(chan struct{})}
	close(engine.release) // cycles complete immediately
	analysis := &countingAnalysis{}
	s := New(engine, analysis, time.Minute, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if !s.RunCycle(context.Background()) {
			t.Fatalf("cycle %d was skipped", i)
		}
	}
	if got := engine.callCount(); got != 2 {
		t.Fatalf("engine ran %d times, want 2", got)
	}
	if analysis.calls != 2 {
		t.Fatalf("analysis ran %d times, want 2", analysis.calls)
	}
}
