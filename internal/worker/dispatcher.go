package worker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"finsight/internal/log"
)

// Generator runs one insight pass for a user and reports the inserted count.
type Generator interface {
	GenerateForUser(ctx context.Context, userID int64) int
}

// Submitter accepts fire-and-forget generation requests.
type Submitter interface {
	Submit(userID int64) bool
}

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	// MaxConcurrent bounds passes running at once across all users (default: 4)
	MaxConcurrent int64
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{MaxConcurrent: 4}
}

type userState struct {
	pending bool
}

// Dispatcher runs generation passes in the background. Each user has at most
// one pass running and one pending; further submits while a pass is pending
// coalesce into it. Passes for different users run in parallel up to MaxConcurrent.
type Dispatcher struct {
	gen    Generator
	sem    *semaphore.Weighted
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	active  map[int64]*userState
	stopped bool
}

func NewDispatcher(gen Generator, cfg DispatcherConfig, logger *log.Logger) *Dispatcher {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = DefaultDispatcherConfig().MaxConcurrent
	}
	if logger == nil {
		logger = log.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		gen:    gen,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		logger: logger.WithComponent(log.ComponentDispatch),
		ctx:    ctx,
		cancel: cancel,
		active: make(map[int64]*userState),
	}
}

// Submit schedules a pass for userID and returns immediately. It reports
// false only after Stop has been called.
func (d *Dispatcher) Submit(userID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if st, ok := d.active[userID]; ok {
		st.pending = true
		return true
	}
	d.active[userID] = &userState{}
	d.wg.Add(1)
	go d.run(userID)
	return true
}

func (d *Dispatcher) run(userID int64) {
	defer d.wg.Done()
	for {
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.finish(userID)
			return
		}
		d.pass(userID)
		d.sem.Release(1)

		d.mu.Lock()
		st := d.active[userID]
		if st.pending && d.ctx.Err() == nil {
			st.pending = false
			d.mu.Unlock()
			continue
		}
		delete(d.active, userID)
		d.mu.Unlock()
		return
	}
}

func (d *Dispatcher) finish(userID int64) {
	d.mu.Lock()
	delete(d.active, userID)
	d.mu.Unlock()
}

func (d *Dispatcher) pass(userID int64) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Generation pass panicked",
				log.FieldUserID, userID,
				log.FieldError, fmt.Sprint(r))
		}
	}()
	n := d.gen.GenerateForUser(d.ctx, userID)
	d.logger.Debug("Generation pass finished", log.FieldUserID, userID, log.FieldCount, n)
}

// Stop refuses new submits and waits for running and pending passes. If ctx
// expires first, in-flight passes are cancelled and ctx.Err is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.InfoContext(ctx, "Dispatcher stopped gracefully")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.logger.WarnContext(ctx, "Dispatcher stop timed out, in-flight passes cancelled")
		return ctx.Err()
	}
}

// Pending reports how many users currently have a pass running or queued.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}
