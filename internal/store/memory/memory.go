package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"finsight/internal/core"
	"finsight/internal/store"
)

// Ensure interface conformance
var (
	_ store.Ledger           = (*Store)(nil)
	_ store.InsightStore     = (*Store)(nil)
	_ store.ActiveUserLister = (*Store)(nil)
)

// Store keeps the ledger and the insights in process memory.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	txs      []core.Transaction
	budgets  map[int64]map[string]core.Budget
	goals    []core.Goal
	insights []core.Insight
	nextTxID int64
	nextGoal int64
	nextID   int64
}

func New() *Store {
	return &Store{
		now:     time.Now,
		budgets: make(map[int64]map[string]core.Budget),
	}
}

// SetClock replaces the clock used to stamp inserted insights.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddTransaction stores a ledger entry and returns it with its ID set.
func (s *Store) AddTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTxID++
	tx.ID = s.nextTxID
	s.txs = append(s.txs, tx)
	return tx, nil
}

// SetBudget creates or replaces the budget for b.Category.
func (s *Store) SetBudget(_ context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byCat, ok := s.budgets[b.UserID]
	if !ok {
		byCat = make(map[string]core.Budget)
		s.budgets[b.UserID] = byCat
	}
	byCat[b.Category] = b
	return nil
}

func (s *Store) AddGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGoal++
	g.ID = s.nextGoal
	s.goals = append(s.goals, g)
	return g, nil
}

func (s *Store) ListTransactions(_ context.Context, userID int64, from, to core.Date, txType *core.TransactionType) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID != userID {
			continue
		}
		if tx.Date.Before(from.Time) || tx.Date.After(to.Time) {
			continue
		}
		if txType != nil && tx.Type != *txType {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (s *Store) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, 0, len(s.budgets[userID]))
	for _, b := range s.budgets[userID] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *Store) ListGoals(_ context.Context, userID int64, status core.GoalStatus) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Goal
	for _, g := range s.goals {
		if g.UserID == userID && g.Status == status {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) ActiveUserIDs(_ context.Context, since core.Date) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]struct{}{}
	var out []int64
	for _, tx := range s.txs {
		if tx.Date.Before(since.Time) {
			continue
		}
		if _, ok := seen[tx.UserID]; ok {
			continue
		}
		seen[tx.UserID] = struct{}{}
		out = append(out, tx.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) Insert(_ context.Context, in core.Insight) (core.Insight, error) {
	if err := in.Validate(); err != nil {
		return core.Insight{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := s.now()
	in.ID = s.nextID
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = in.CreatedAt
	s.insights = append(s.insights, in)
	return in, nil
}

func (s *Store) ListByUser(_ context.Context, userID int64, opts store.ListOptions) ([]core.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Insight
	for _, in := range s.insights {
		if in.UserID != userID {
			continue
		}
		if opts.UnreadOnly && in.Read {
			continue
		}
		out = append(out, in)
	}
	sortNewestFirst(out)
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) FindDuplicates(_ context.Context, userID int64, message string, since time.Time) ([]core.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Insight
	for _, in := range s.insights {
		if in.UserID == userID && in.Message == message && !in.CreatedAt.Before(since) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *Store) DeleteMany(_ context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.insights[:0]
	for _, in := range s.insights {
		if _, ok := drop[in.ID]; !ok {
			kept = append(kept, in)
		}
	}
	s.insights = kept
	return nil
}

func (s *Store) Get(_ context.Context, id int64) (core.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.insights {
		if in.ID == id {
			return in, nil
		}
	}
	return core.Insight{}, core.ErrNotFound
}

func (s *Store) MarkRead(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.insights {
		if s.insights[i].ID == id {
			if !s.insights[i].Read {
				s.insights[i].Read = true
				s.insights[i].UpdatedAt = s.now()
			}
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *Store) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := s.now()
	for i := range s.insights {
		if s.insights[i].UserID == userID && !s.insights[i].Read {
			s.insights[i].Read = true
			s.insights[i].UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// sortNewestFirst orders by creation time, breaking ties by the later insert.
func sortNewestFirst(in []core.Insight) {
	sort.SliceStable(in, func(i, j int) bool {
		if !in[i].CreatedAt.Equal(in[j].CreatedAt) {
			return in[i].CreatedAt.After(in[j].CreatedAt)
		}
		return in[i].ID > in[j].ID
	})
}
