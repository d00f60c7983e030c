package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingGenerator struct {
	started chan int64
	release chan struct{}
	calls   atomic.Int64
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{started: make(chan int64, 16), release: make(chan struct{})}
}

func (g *blockingGenerator) GenerateForUser(ctx context.Context, userID int64) int {
	g.calls.Add(1)
	g.started <- userID
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	return 1
}

type funcGenerator func(ctx context.Context, userID int64) int

func (f funcGenerator) GenerateForUser(ctx context.Context, userID int64) int { return f(ctx, userID) }

func waitStarted(t *testing.T, ch <-chan int64) int64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not start")
		return 0
	}
}

func TestDispatcher_CoalescesBurstsPerUser(t *testing.T) {
	gen := newBlockingGenerator()
	d := NewDispatcher(gen, DefaultDispatcherConfig(), nil)

	d.Submit(1)
	waitStarted(t, gen.started)

	// while the first pass runs, a burst collapses into one pending pass
	for i := 0; i < 5; i++ {
		if !d.Submit(1) {
			t.Fatal("submit refused before stop")
		}
	}
	close(gen.release)

	if err := d.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := gen.calls.Load(); got != 2 {
		t.Errorf("passes = %d, want 2", got)
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d after stop", d.Pending())
	}
}

func TestDispatcher_RunsUsersInParallel(t *testing.T) {
	gen := newBlockingGenerator()
	d := NewDispatcher(gen, DispatcherConfig{MaxConcurrent: 2}, nil)

	d.Submit(1)
	d.Submit(2)
	seen := map[int64]bool{waitStarted(t, gen.started): true, waitStarted(t, gen.started): true}
	if !seen[1] || !seen[2] {
		t.Errorf("started users = %v", seen)
	}
	close(gen.release)
	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	var wg sync.WaitGroup
	wg.Add(6)
	gen := funcGenerator(func(ctx context.Context, userID int64) int {
		defer wg.Done()
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return 0
	})
	d := NewDispatcher(gen, DispatcherConfig{MaxConcurrent: 2}, nil)
	for id := int64(1); id <= 6; id++ {
		d.Submit(id)
	}
	wg.Wait()
	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestDispatcher_RecoversPanics(t *testing.T) {
	var calls atomic.Int64
	gen := funcGenerator(func(ctx context.Context, userID int64) int {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return 1
	})
	d := NewDispatcher(gen, DefaultDispatcherConfig(), nil)

	d.Submit(1)
	deadline := time.Now().Add(2 * time.Second)
	for d.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Submit(1)
	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestDispatcher_StopRefusesNewWork(t *testing.T) {
	d := NewDispatcher(funcGenerator(func(context.Context, int64) int { return 0 }), DefaultDispatcherConfig(), nil)
	if err := d.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if d.Submit(1) {
		t.Error("submit accepted after stop")
	}
}

func TestDispatcher_StopDeadlineCancelsPasses(t *testing.T) {
	gen := newBlockingGenerator()
	d := NewDispatcher(gen, DefaultDispatcherConfig(), nil)
	d.Submit(1)
	waitStarted(t, gen.started)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop = %v, want deadline exceeded", err)
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d after cancelled stop", d.Pending())
	}
}
