package worker

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/store"
)

// SweeperConfig holds configuration for the periodic sweep
type SweeperConfig struct {
	// Interval between sweeps (default: 1h)
	Interval time.Duration

	// WindowDays selects users with transactions in the last N days (default: 30)
	WindowDays int
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: time.Hour, WindowDays: 30}
}

// Sweeper periodically submits every recently active user for generation,
// catching users whose change events were lost.
type Sweeper struct {
	users    store.ActiveUserLister
	dispatch Submitter
	config   SweeperConfig
	now      func() time.Time
	logger   *log.Logger
}

func NewSweeper(users store.ActiveUserLister, dispatch Submitter, cfg SweeperConfig, logger *log.Logger) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.WindowDays < 1 {
		cfg.WindowDays = def.WindowDays
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Sweeper{
		users:    users,
		dispatch: dispatch,
		config:   cfg,
		now:      time.Now,
		logger:   logger.WithComponent(log.ComponentSweeper),
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Sweeper started", "interval", s.config.Interval)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "Sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce submits each active user and returns how many were accepted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	since := core.DateOf(s.now()).AddDays(-s.config.WindowDays)
	ids, err := s.users.ActiveUserIDs(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("list active users: %w", err)
	}

	submitted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if s.dispatch.Submit(id) {
			submitted++
		}
	}

	s.logger.InfoContext(ctx, "Sweep completed",
		log.FieldOperation, log.OpSweep,
		log.FieldCount, submitted,
		"active_users", len(ids))
	return submitted, nil
}
