package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/store"
)

// EngineConfig holds the windowing and retention parameters of a generation pass.
type EngineConfig struct {
	// WindowDays is how many days before today the aggregation window starts (default: 30)
	WindowDays int

	// DedupWindow is how far back an identical message suppresses a candidate (default: 24h)
	DedupWindow time.Duration

	// RetentionCap is how many insights a user keeps after a pass (default: 5)
	RetentionCap int

	// ListCap is how many insights an unfiltered listing returns (default: 6)
	ListCap int
}

// DefaultEngineConfig returns sensible defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		WindowDays:   30,
		DedupWindow:  24 * time.Hour,
		RetentionCap: 5,
		ListCap:      6,
	}
}

func (c EngineConfig) Validate() error {
	var problems []string
	if c.WindowDays < 1 {
		problems = append(problems, fmt.Sprintf("window days %d: must be at least 1", c.WindowDays))
	}
	if c.DedupWindow < 0 {
		problems = append(problems, fmt.Sprintf("dedup window %v: must not be negative", c.DedupWindow))
	}
	if c.RetentionCap < 1 {
		problems = append(problems, fmt.Sprintf("retention cap %d: must be at least 1", c.RetentionCap))
	}
	if c.ListCap < 1 {
		problems = append(problems, fmt.Sprintf("list cap %d: must be at least 1", c.ListCap))
	}
	if len(problems) > 0 {
		return fmt.Errorf("engine configuration invalid:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// InsightService runs generation passes: aggregate, evaluate, dedup, persist, trim.
type InsightService struct {
	ledger    store.Ledger
	insights  store.InsightStore
	evaluator *RuleEvaluator
	cfg       EngineConfig
	now       func() time.Time
	logger    *log.Logger
	metrics   *Metrics
	locks     *userLocks
}

type Option func(*InsightService)

// WithClock overrides time.Now. Tests use it to pin "today".
func WithClock(now func() time.Time) Option {
	return func(s *InsightService) { s.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(s *InsightService) { s.logger = l.WithComponent(log.ComponentInsights) }
}

func WithMetrics(m *Metrics) Option {
	return func(s *InsightService) { s.metrics = m }
}

func NewInsightService(ledger store.Ledger, insights store.InsightStore, evaluator *RuleEvaluator, cfg EngineConfig, opts ...Option) *InsightService {
	s := &InsightService{
		ledger:    ledger,
		insights:  insights,
		evaluator: evaluator,
		cfg:       cfg,
		now:       time.Now,
		logger:    log.Discard(),
		metrics:   NoopMetrics(),
		locks:     newUserLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = NewRuleEvaluator(DefaultRuleConfig(), s.logger, s.metrics)
	}
	return s
}

// GenerateForUser runs one pass and returns how many insights were inserted.
// Failures are logged and reported as a zero or partial count, never returned.
func (s *InsightService) GenerateForUser(ctx context.Context, userID int64) int {
	n, err := s.Generate(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Insight generation failed",
			log.FieldUserID, userID,
			log.FieldCount, n,
			log.FieldError, err)
	}
	return n
}

// Generate runs one pass for userID. Passes for the same user never overlap.
// When err is non-nil, n still counts insights inserted before the failure.
func (s *InsightService) Generate(ctx context.Context, userID int64) (n int, err error) {
	if userID <= 0 {
		return 0, core.ErrInvalidUser
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	now := s.now()
	today := core.DateOf(now)
	from := today.AddDays(-s.cfg.WindowDays)

	in, err := s.loadInputs(ctx, userID, from, today)
	if err != nil {
		s.metrics.PassFailed(ctx, "load")
		return 0, err
	}

	candidates := s.evaluator.Evaluate(ctx, in)

	var passErr error
	for _, c := range candidates {
		ok, err := s.dedupAndInsert(ctx, userID, c, now)
		if err != nil {
			s.metrics.PassFailed(ctx, "insert")
			passErr = fmt.Errorf("insert %s insight: %w", c.Rule, err)
			break
		}
		if ok {
			n++
		}
	}

	trimmed, err := s.enforceRetention(ctx, userID)
	if err != nil {
		s.metrics.PassFailed(ctx, "retention")
		passErr = errors.Join(passErr, fmt.Errorf("enforce retention: %w", err))
	}

	s.logger.InfoContext(ctx, "Insight pass completed",
		log.FieldUserID, userID,
		"candidates", len(candidates),
		"inserted", n,
		"trimmed", trimmed)
	return n, passErr
}

func (s *InsightService) loadInputs(ctx context.Context, userID int64, from, to core.Date) (RuleInput, error) {
	txs, err := s.ledger.ListTransactions(ctx, userID, from, to, nil)
	if err != nil {
		return RuleInput{}, fmt.Errorf("load transactions: %w", err)
	}
	budgets, err := s.ledger.ListBudgets(ctx, userID)
	if err != nil {
		return RuleInput{}, fmt.Errorf("load budgets: %w", err)
	}
	goals, err := s.ledger.ListGoals(ctx, userID, core.GoalActive)
	if err != nil {
		return RuleInput{}, fmt.Errorf("load goals: %w", err)
	}
	return RuleInput{
		Window:  Aggregate(txs, from, to),
		Budgets: budgets,
		Goals:   goals,
	}, nil
}

// dedupAndInsert stores c unless an identical message was issued within the
// dedup window. It reports whether a new insight was stored.
func (s *InsightService) dedupAndInsert(ctx context.Context, userID int64, c Candidate, now time.Time) (bool, error) {
	dups, err := s.insights.FindDuplicates(ctx, userID, c.Message, now.Add(-s.cfg.DedupWindow))
	if err != nil {
		return false, err
	}
	if len(dups) > 0 {
		s.metrics.Suppressed(ctx)
		s.logger.DebugContext(ctx, "Duplicate insight suppressed",
			log.FieldUserID, userID,
			log.FieldRule, c.Rule)
		return false, nil
	}

	_, err = s.insights.Insert(ctx, core.Insight{
		UserID:    userID,
		Message:   c.Message,
		Severity:  c.Severity,
		CreatedAt: now,
	})
	if errors.Is(err, core.ErrDuplicate) {
		s.metrics.Suppressed(ctx)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.metrics.Inserted(ctx, 1, string(c.Severity))
	return true, nil
}

// enforceRetention deletes every insight beyond RetentionCap, read or not.
func (s *InsightService) enforceRetention(ctx context.Context, userID int64) (int, error) {
	all, err := s.insights.ListByUser(ctx, userID, store.ListOptions{})
	if err != nil {
		return 0, err
	}
	if len(all) <= s.cfg.RetentionCap {
		return 0, nil
	}
	excess := all[s.cfg.RetentionCap:]
	ids := make([]int64, len(excess))
	for i, in := range excess {
		ids[i] = in.ID
	}
	if err := s.insights.DeleteMany(ctx, ids); err != nil {
		return 0, err
	}
	s.metrics.Trimmed(ctx, len(ids))
	return len(ids), nil
}

// userLocks is a keyed mutex. Entries are dropped once nobody holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (l *userLocks) lock(userID int64) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}
